package device

import (
	"slices"
	"sort"
	"time"

	"go.olrik.dev/adbwatch/internal/history"
)

// HistoryLookup is the read side of the identity store used while
// reconciling.
type HistoryLookup interface {
	Get(serial string) (history.Record, bool)
	FindByIP(ip string) (history.Record, bool)
}

// Result is the outcome of one reconciliation.
type Result struct {
	// Devices is the canonical set, sorted by display name.
	Devices []Device

	// HistoryUpdates are the sightings to merge into the identity store.
	HistoryUpdates []history.Record
}

// Reconcile folds one poll's observations into canonical devices.
//
// Observations are processed in encounter order. Offline address based
// observations recover their serial from history by IP; everything is then
// grouped by persistent serial (falling back to the raw id) and folded with
// the primary/secondary rules in mergeObservation. Sticky fields known from
// the previous cycle are carried over. The store is only read; the updates
// to persist are returned.
func Reconcile(observations []Observation, previous []Device, store HistoryLookup, now time.Time) Result {
	groups := make(map[string]*Device)
	var order []string

	for _, obs := range observations {
		custom := ""
		if obs.PersistentSerial == "" && !obs.State.IsConnected() &&
			obs.Connection.Kind == KindTCPIP && obs.Connection.HasAddress() && store != nil {
			if rec, ok := store.FindByIP(obs.Connection.IP); ok {
				obs.PersistentSerial = rec.PersistentSerial
				obs.Model = firstNonEmpty(obs.Model, rec.Model)
				obs.Brand = firstNonEmpty(obs.Brand, rec.Brand)
				custom = rec.CustomName
			}
		}

		key := obs.PersistentSerial
		if key == "" {
			key = obs.RawID
		}

		existing, ok := groups[key]
		if !ok {
			d := newDevice(obs)
			d.CustomName = custom
			groups[key] = &d
			order = append(order, key)
			continue
		}
		mergeObservation(existing, obs)
		if existing.CustomName == "" {
			existing.CustomName = custom
		}
	}

	prevByID := make(map[string]Device, len(previous))
	for _, d := range previous {
		prevByID[d.ID] = d
	}

	devices := make([]Device, 0, len(order))
	for _, key := range order {
		d := *groups[key]
		d.ID = d.PersistentSerial
		if d.ID == "" {
			d.ID = d.PrimaryRawID
		}

		if prev, ok := prevByID[d.ID]; ok {
			fillSticky(&d, prev.Model, prev.Brand, prev.AndroidVersion, prev.SDKVersion, prev.Product)
		}
		if d.PersistentSerial != "" && store != nil {
			if rec, ok := store.Get(d.PersistentSerial); ok {
				if rec.CustomName != "" {
					d.CustomName = rec.CustomName
				}
				fillSticky(&d, rec.Model, rec.Brand, "", "", "")
			}
		}

		devices = append(devices, d)
	}

	updates := historyUpdates(devices, now)

	SortByDisplayName(devices)

	return Result{Devices: devices, HistoryUpdates: updates}
}

// SortByDisplayName orders devices by display name (case-sensitive), then
// by canonical id.
func SortByDisplayName(devices []Device) {
	sort.SliceStable(devices, func(i, j int) bool {
		a, b := devices[i].DisplayName(), devices[j].DisplayName()
		if a != b {
			return a < b
		}
		return devices[i].ID < devices[j].ID
	})
}

func newDevice(obs Observation) Device {
	return Device{
		PrimaryRawID:     obs.RawID,
		Primary:          obs.Connection,
		State:            obs.State,
		PersistentSerial: obs.PersistentSerial,
		Model:            obs.Model,
		Brand:            obs.Brand,
		AndroidVersion:   obs.AndroidVersion,
		SDKVersion:       obs.SDKVersion,
		Product:          obs.Product,
	}
}

// mergeObservation folds incoming into existing:
//
//	a. a connection already known is a re-sighting: sticky fields only
//	b. connected beats not connected: incoming becomes primary
//	c. USB beats a non-USB primary
//	d. anything else is appended as a secondary
//
// A connected USB primary is never displaced by a same or lower priority
// connection.
func mergeObservation(existing *Device, incoming Observation) {
	defer fillSticky(existing, incoming.Model, incoming.Brand, incoming.AndroidVersion, incoming.SDKVersion, incoming.Product)

	if existing.Primary == incoming.Connection || slices.Contains(existing.Secondary, incoming.Connection) {
		return
	}

	switch {
	case incoming.State.IsConnected() && !existing.State.IsConnected():
		promote(existing, incoming)
		existing.State = incoming.State
	case incoming.Connection.Kind == KindUSB && existing.Primary.Kind != KindUSB:
		promote(existing, incoming)
		if !existing.State.IsConnected() {
			existing.State = incoming.State
		}
	default:
		addSecondary(existing, incoming.RawID, incoming.Connection)
	}
}

// promote makes incoming the primary and demotes the old primary.
func promote(d *Device, incoming Observation) {
	oldID, oldConn := d.PrimaryRawID, d.Primary
	d.PrimaryRawID = incoming.RawID
	d.Primary = incoming.Connection
	addSecondary(d, oldID, oldConn)
}

func addSecondary(d *Device, rawID string, conn Connection) {
	if conn == d.Primary || slices.Contains(d.Secondary, conn) {
		return
	}
	d.SecondaryRawIDs = append(d.SecondaryRawIDs, rawID)
	d.Secondary = append(d.Secondary, conn)
}

func fillSticky(d *Device, model, brand, androidVersion, sdkVersion, product string) {
	d.Model = firstNonEmpty(d.Model, model)
	d.Brand = firstNonEmpty(d.Brand, brand)
	d.AndroidVersion = firstNonEmpty(d.AndroidVersion, androidVersion)
	d.SDKVersion = firstNonEmpty(d.SDKVersion, sdkVersion)
	d.Product = firstNonEmpty(d.Product, product)
}

// historyUpdates builds one sighting per connected device with a known
// serial. Sightings carry only what this cycle observed; the store merges
// them into the durable record.
func historyUpdates(devices []Device, now time.Time) []history.Record {
	var updates []history.Record

	for _, d := range devices {
		if !d.State.IsConnected() || d.PersistentSerial == "" {
			continue
		}

		rec := history.Record{
			PersistentSerial: d.PersistentSerial,
			LastSeen:         now,
			Model:            d.Model,
			Brand:            d.Brand,
		}
		if conn, ok := addressedConnection(d); ok {
			rec.LastKnownIP = conn.IP
			rec.LastKnownPort = conn.Port
		}

		updates = append(updates, rec)
	}

	return updates
}

// addressedConnection returns the primary if it has an address, else the
// first addressed secondary.
func addressedConnection(d Device) (Connection, bool) {
	if d.Primary.HasAddress() {
		return d.Primary, true
	}
	for _, c := range d.Secondary {
		if c.HasAddress() {
			return c, true
		}
	}
	return Connection{}, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
