package timemap

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"gitlab.com/gomidi/midi/v2/smf"
)

// DefaultResolution is the ticks per quarter note used when writing SMF data
const DefaultResolution = 960

// Defaults applied when an SMF file carries no tempo or meter meta events
const (
	defaultQuarterBPM  = 120.0
	defaultNumerator   = 4
	defaultDenominator = 4
)

// metaEvent is a tempo or meter change found while scanning tracks
type metaEvent struct {
	tick        int64
	quarterBPM  float64 // zero when the event is a meter change
	numerator   int
	denominator int
}

// FromSMF reads the tempo map carried by a Standard MIDI File. Tempo (FF 51)
// and time signature (FF 58) events from every track are merged. SMF tempo is
// quarter notes per minute; it is converted to beats of the meter
// denominator.
func FromSMF(data []byte) (*TimeMap, error) {
	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse MIDI: %w", err)
	}

	mt, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, errors.New("SMPTE time format is not supported")
	}
	resolution := float64(mt.Resolution())
	if resolution == 0 {
		return nil, errors.New("MIDI resolution is zero")
	}

	var events []metaEvent
	for _, track := range s.Tracks {
		var tick int64
		for _, ev := range track {
			tick += int64(ev.Delta)
			msg := ev.Message

			// Tempo meta message (FF 51 03 tt tt tt)
			if len(msg) >= 6 && msg[0] == 0xFF && msg[1] == 0x51 && msg[2] == 0x03 {
				microsecondsPerBeat := uint32(msg[3])<<16 | uint32(msg[4])<<8 | uint32(msg[5])
				if microsecondsPerBeat > 0 {
					events = append(events, metaEvent{
						tick:       tick,
						quarterBPM: 60000000.0 / float64(microsecondsPerBeat),
					})
				}
			}

			// Time signature meta message (FF 58 04 nn dd cc bb)
			if len(msg) >= 7 && msg[0] == 0xFF && msg[1] == 0x58 && msg[2] == 0x04 {
				if msg[3] > 0 && msg[4] < 8 {
					events = append(events, metaEvent{
						tick:        tick,
						numerator:   int(msg[3]),
						denominator: 1 << msg[4],
					})
				}
			}
		}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].tick < events[j].tick })

	quarterBPM := defaultQuarterBPM
	num, denom := defaultNumerator, defaultDenominator
	var (
		points   []TempoPoint
		seconds  float64
		lastTick int64
	)
	flush := func(tick int64) {
		p := TempoPoint{
			Time:        seconds,
			BPM:         quarterBPM * float64(denom) / 4,
			Numerator:   num,
			Denominator: denom,
		}
		if n := len(points); n > 0 && points[n-1].Time == p.Time {
			points[n-1] = p
			return
		}
		if n := len(points); n > 0 && points[n-1].Equivalent(p) {
			return
		}
		points = append(points, p)
	}

	flush(0)
	for i := 0; i < len(events); {
		tick := events[i].tick
		seconds += float64(tick-lastTick) / resolution * 60.0 / quarterBPM
		lastTick = tick
		for ; i < len(events) && events[i].tick == tick; i++ {
			if events[i].quarterBPM > 0 {
				quarterBPM = events[i].quarterBPM
			} else {
				num, denom = events[i].numerator, events[i].denominator
			}
		}
		flush(tick)
	}

	return New(points)
}

// ReadSMFFile loads the tempo map of a MIDI file on disk
func ReadSMFFile(filename string) (*TimeMap, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read MIDI file: %w", err)
	}
	return FromSMF(data)
}

// ToSMF writes the map as a single-track SMF containing only tempo and time
// signature meta events.
func (m *TimeMap) ToSMF(resolution uint16) ([]byte, error) {
	if m.Len() == 0 {
		return nil, fmt.Errorf("%w: no tempo points", ErrInvalidTimeMap)
	}
	if resolution == 0 {
		resolution = DefaultResolution
	}

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(resolution)

	var track smf.Track
	var lastTick int64
	var prev *TempoPoint
	var ticks float64
	for i := range m.points {
		p := m.points[i]
		if prev != nil {
			// quarter notes elapsed at the previous tempo
			quarters := (p.Time - prev.Time) / prev.SecondsPerBeat() * 4 / float64(prev.Denominator)
			ticks += quarters * float64(resolution)
		}
		tick := int64(math.Round(ticks))
		delta := uint32(tick - lastTick)
		lastTick = tick

		quarterBPM := p.BPM * 4 / float64(p.Denominator)
		microsecondsPerBeat := uint32(math.Round(60000000.0 / quarterBPM))
		track.Add(delta, smf.Message([]byte{
			0xFF, 0x51, 0x03,
			byte(microsecondsPerBeat >> 16),
			byte(microsecondsPerBeat >> 8),
			byte(microsecondsPerBeat),
		}))

		if prev == nil || !p.SameMeter(*prev) {
			track.Add(0, smf.Message([]byte{
				0xFF, 0x58, 0x04,
				byte(p.Numerator),
				byte(math.Log2(float64(p.Denominator))),
				0x18, 0x08,
			}))
		}
		prev = &m.points[i]
	}
	track.Close(0)

	if err := s.Add(track); err != nil {
		return nil, fmt.Errorf("failed to add track: %w", err)
	}

	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write MIDI: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteSMFFile writes the map to a MIDI file
func (m *TimeMap) WriteSMFFile(filename string) error {
	data, err := m.ToSMF(DefaultResolution)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
