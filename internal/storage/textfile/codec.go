package textfile

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"universe-server/internal/physics"
	"universe-server/internal/shared/errors"
	"universe-server/internal/storage"

	"gonum.org/v1/gonum/spatial/r2"
)

const (
	separator   = ";"
	bodyFields  = 7
	headerField = 3
)

// Document is a decoded universe file.
type Document struct {
	Universe *physics.Universe
	Meta     storage.RunMeta
	// Skipped counts body rows that were ignored as malformed.
	Skipped int
}

// Encode writes u in the line format
//
//	<bodyCount>;<iterations>;<stepSeconds>
//	<name>;<mass>;<radius>;<posX>;<posY>;<velX>;<velY>
//
// Only valid bodies are written. Density is not stored; the radius is.
func Encode(w io.Writer, u *physics.Universe, meta storage.RunMeta) error {
	var bodies []*physics.Body
	for _, b := range u.Bodies() {
		if b.Valid {
			bodies = append(bodies, b)
		}
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d;%d;%d\n", len(bodies), meta.Iterations, meta.StepSeconds)

	for _, b := range bodies {
		if strings.ContainsAny(b.Name, separator+"\r\n") {
			return errors.Validationf("body name %q cannot be stored in a text universe", b.Name)
		}
		fields := []string{
			b.Name,
			formatFloat(b.Mass),
			formatFloat(b.Radius()),
			formatFloat(b.Pos.X),
			formatFloat(b.Pos.Y),
			formatFloat(b.Vel.X),
			formatFloat(b.Vel.Y),
		}
		bw.WriteString(strings.Join(fields, separator))
		bw.WriteByte('\n')
	}

	return bw.Flush()
}

// Decode parses a universe file. A missing or malformed header is an error;
// body rows without exactly seven fields, or with unparsable numbers, are
// skipped.
func Decode(r io.Reader) (*Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, errors.WrapValidation("failed to read universe header", err)
		}
		return nil, errors.Validation("universe file is empty")
	}

	meta, err := parseHeader(scanner.Text())
	if err != nil {
		return nil, err
	}

	doc := &Document{Universe: physics.New(), Meta: meta}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		body, ok := parseBody(line)
		if !ok {
			doc.Skipped++
			continue
		}
		doc.Universe.Add(body)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WrapValidation("failed to read universe bodies", err)
	}

	return doc, nil
}

func parseHeader(line string) (storage.RunMeta, error) {
	fields := strings.Split(strings.TrimSpace(line), separator)
	if len(fields) < headerField {
		return storage.RunMeta{}, errors.Validationf("universe header %q needs %d fields", line, headerField)
	}

	values := make([]int, headerField)
	for i := range values {
		v, err := strconv.Atoi(strings.TrimSpace(fields[i]))
		if err != nil {
			return storage.RunMeta{}, errors.WrapValidation("invalid universe header", err)
		}
		values[i] = v
	}

	return storage.RunMeta{Iterations: values[1], StepSeconds: values[2]}, nil
}

func parseBody(line string) (*physics.Body, bool) {
	fields := strings.Split(line, separator)
	if len(fields) != bodyFields {
		return nil, false
	}

	var nums [bodyFields - 1]float64
	for i := range nums {
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[i+1]), 64)
		if err != nil {
			return nil, false
		}
		nums[i] = v
	}

	mass, radius := nums[0], nums[1]
	return physics.NewBody(
		fields[0],
		mass,
		physics.DensityFromRadius(mass, radius),
		r2.Vec{X: nums[2], Y: nums[3]},
		r2.Vec{X: nums[4], Y: nums[5]},
	), true
}

// formatFloat renders the shortest representation that parses back to v.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
