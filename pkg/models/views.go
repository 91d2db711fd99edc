package models

import "time"

// RankEntry is one member of a top-N view.
type RankEntry struct {
	Member  string `json:"member"`
	Count   int64  `json:"count"`
	Percent int64  `json:"percent,omitempty"`
}

// QueueRecord is one entry of a bounded recency queue.
type QueueRecord struct {
	IP         string    `json:"ip"`
	Country    string    `json:"country"`
	Province   string    `json:"province"`
	City       string    `json:"city"`
	UpdateTime time.Time `json:"update_time"`
}

// CityFlow aggregates traffic between one source and one destination city.
// Stored merge-on-write as a hash field keyed "srcCity->dstCity".
type CityFlow struct {
	Count        int64   `json:"count"`
	SrcCountry   string  `json:"src_country"`
	SrcProvince  string  `json:"src_province"`
	SrcCity      string  `json:"src_city"`
	SrcLatitude  float64 `json:"src_latitude"`
	SrcLongitude float64 `json:"src_longitude"`
	DstCountry   string  `json:"dst_country"`
	DstProvince  string  `json:"dst_province"`
	DstCity      string  `json:"dst_city"`
	DstLatitude  float64 `json:"dst_latitude"`
	DstLongitude float64 `json:"dst_longitude"`
}

// AttackData is the attack-statistics hash for one day.
type AttackData map[string]int64
