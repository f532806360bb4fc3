package rotation

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// DisabledFixedPlate marks a disabled rotation line in the PLATES4 format.
const DisabledFixedPlate = 999

// ParseRot parses PLATES4 rotation file content. Each line is
//
//	moving time lat lon angle fixed !comment
//
// Consecutive lines sharing (moving, fixed) form one sequence. Lines with
// fixed plate 999 are kept as disabled samples of the preceding sequence's
// plate pair when one exists, otherwise skipped.
func ParseRot(data []byte) ([]*Sequence, error) {
	var sequences []*Sequence
	var current *Sequence

	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "!") || strings.HasPrefix(line, "#") {
			continue
		}

		comment := ""
		if idx := strings.Index(line, "!"); idx >= 0 {
			comment = strings.TrimSpace(line[idx+1:])
			line = strings.TrimSpace(line[:idx])
		}

		fields := strings.Fields(line)
		if len(fields) < 6 {
			return nil, fmt.Errorf("rot line %d: expected 6 fields, got %d", lineNo, len(fields))
		}

		moving, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("rot line %d: bad moving plate %q: %w", lineNo, fields[0], err)
		}
		fixed, err := strconv.Atoi(fields[5])
		if err != nil {
			return nil, fmt.Errorf("rot line %d: bad fixed plate %q: %w", lineNo, fields[5], err)
		}
		var vals [4]float64
		for i := 1; i <= 4; i++ {
			vals[i-1], err = strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return nil, fmt.Errorf("rot line %d: bad number %q: %w", lineNo, fields[i], err)
			}
		}
		time, lat, lon, angle := vals[0], vals[1], vals[2], vals[3]

		enabled := fixed != DisabledFixedPlate
		if !enabled {
			if current == nil {
				continue
			}
			fixed = current.FixedPlate
			moving = current.MovingPlate
		}

		if current == nil || current.MovingPlate != moving || current.FixedPlate != fixed {
			current = &Sequence{MovingPlate: moving, FixedPlate: fixed}
			sequences = append(sequences, current)
		}
		current.Samples = append(current.Samples, TimeSample{
			Time:     time,
			Rotation: NewFiniteRotation(lat, lon, angle),
			Enabled:  enabled,
			Comment:  comment,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning rot data: %w", err)
	}

	for _, seq := range sequences {
		seq.SortSamples()
	}
	return sequences, nil
}

// FormatRot serializes sequences back to the PLATES4 line format.
func FormatRot(sequences []*Sequence) []byte {
	var buf bytes.Buffer
	for _, seq := range sequences {
		for _, smp := range seq.Samples {
			lat, lon, angle := smp.Rotation.Pole()
			fixed := seq.FixedPlate
			if !smp.Enabled {
				fixed = DisabledFixedPlate
			}
			fmt.Fprintf(&buf, "%d %.4f %.4f %.4f %.4f %d", seq.MovingPlate, smp.Time, lat, lon, angle, fixed)
			if smp.Comment != "" {
				fmt.Fprintf(&buf, " !%s", smp.Comment)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes()
}
