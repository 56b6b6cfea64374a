package semtech

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lestrrat-go/strftime"
)

// statTimeFormatter renders the stat JSON `time` field exactly as
// spec.md §6 requires: "%F %T %Z", evaluated in local time. lestrrat-go's
// strftime gives us that C-style directive set directly, instead of
// hand-mapping each directive onto Go's reference-time layout.
var statTimeFormatter = mustStrftime("%F %T %Z")

func mustStrftime(pattern string) *strftime.Strftime {
	f, err := strftime.New(pattern)
	if err != nil {
		panic(fmt.Sprintf("semtech: invalid strftime pattern %q: %v", pattern, err))
	}
	return f
}

// FormatStatTime renders t (converted to Local) the way the stat.time
// field requires.
func FormatStatTime(t time.Time) string {
	return statTimeFormatter.FormatString(t.Local())
}

// Stat is the periodic upstream/downstream report sent inside PUSH_DATA's
// `stat` object (spec.md §3/§6), built fresh each stats window.
type Stat struct {
	Time string `json:"time"`

	// Location, populated from the GPS fix or, without one, from a
	// configured reference position.
	HaveLocation bool
	Lati         float64
	Long         float64
	Alti         int32

	RXNb   uint32 // frames received
	RXOK   uint32 // frames received with a valid CRC
	RXFW   uint32 // frames forwarded upstream
	ACKR   float32 // PUSH_DATA ack rate, percent
	DWNb   uint32 // downlinks received from the server
	TXNb   uint32 // downlinks actually transmitted

	HaveTemp bool
	Temp     float32 // concentrator temperature, Celsius
}

type wireStat struct {
	Time string   `json:"time"`
	Lati *float64 `json:"lati,omitempty"`
	Long *float64 `json:"long,omitempty"`
	Alti *int32   `json:"alti,omitempty"`
	RXNb uint32   `json:"rxnb"`
	RXOK uint32   `json:"rxok"`
	RXFW uint32   `json:"rxfw"`
	ACKR float32  `json:"ackr"`
	DWNb uint32   `json:"dwnb"`
	TXNb uint32   `json:"txnb"`
	Temp *float32 `json:"temp,omitempty"`
}

// MarshalJSON encodes the stat object, omitting lati/long/alti when no GPS
// fix is available, matching the reference server's own tolerant behavior.
func (s Stat) MarshalJSON() ([]byte, error) {
	w := wireStat{
		Time: s.Time,
		RXNb: s.RXNb,
		RXOK: s.RXOK,
		RXFW: s.RXFW,
		ACKR: s.ACKR,
		DWNb: s.DWNb,
		TXNb: s.TXNb,
	}
	if s.HaveLocation {
		w.Lati = &s.Lati
		w.Long = &s.Long
		w.Alti = &s.Alti
	}
	if s.HaveTemp {
		w.Temp = &s.Temp
	}
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("semtech: marshal stat: %w", err)
	}
	return data, nil
}
