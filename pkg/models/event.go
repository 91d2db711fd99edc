package models

import "time"

// Event is one traffic or alert record produced by an audit sensor.
// The wire fields come in over the ingestion list; the remaining fields
// are filled in by the classify stage and never serialized.
type Event struct {
	SrcIP      string    `json:"src_ip"`
	DstIP      string    `json:"dst_ip"`
	SrcPort    int       `json:"src_port"`
	DstPort    int       `json:"dst_port"`
	Protocol   string    `json:"protocol"`
	OccurredAt time.Time `json:"occurred_at"`
	Category   int       `json:"category,omitempty"`

	SrcRecord  *GeoRecord `json:"-"`
	DstRecord  *GeoRecord `json:"-"`
	SrcPrivate bool       `json:"-"`
	DstPrivate bool       `json:"-"`
	SrcIPv6    bool       `json:"-"`
	DstIPv6    bool       `json:"-"`
	DstDevice  string     `json:"-"`

	// SrcNovelToday is set by the attack-statistics stage when the source
	// address is external and seen for the first time today; the recency
	// stage downstream keys off it.
	SrcNovelToday bool `json:"-"`
}

// GeoRecord is the result of a geography lookup for one address.
type GeoRecord struct {
	IP        string  `json:"ip"`
	Country   string  `json:"country"`
	Province  string  `json:"province"`
	City      string  `json:"city"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// IsZero reports whether no lookup data is attached to the record.
func (r GeoRecord) IsZero() bool {
	return r.Country == "" && r.Province == "" && r.City == ""
}
