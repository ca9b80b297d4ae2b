package seeder

import (
	"archive/zip"
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/alexivanou/cityweather-api/internal/model"
	"go.uber.org/zap"
)

// maxNameLength matches the limit enforced on the HTTP registration route
const maxNameLength = 30

// Entry is one city of a seed list
type Entry struct {
	Name      string
	Latitude  float64
	Longitude float64
}

// Registrar registers one city, fetching its current weather
type Registrar interface {
	RegisterCity(ctx context.Context, name string, lat, lon float64) (*model.RegisteredCityResponse, error)
}

// Result summarises a seeding run
type Result struct {
	Registered int
	Failed     int
}

// ParseFile reads a city list. Files ending in .zip are searched for the first .txt or .tsv entry.
func ParseFile(path string) ([]Entry, int, error) {
	if strings.HasSuffix(path, ".zip") {
		return parseZip(path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	return Parse(file)
}

func parseZip(path string) ([]Entry, int, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open zip: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if !strings.HasSuffix(f.Name, ".txt") && !strings.HasSuffix(f.Name, ".tsv") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, 0, fmt.Errorf("failed to open %s in zip: %w", f.Name, err)
		}
		defer rc.Close()
		return Parse(rc)
	}

	return nil, 0, fmt.Errorf("no city list found in %s", path)
}

// Parse reads lines of name<TAB>latitude<TAB>longitude. Blank lines and lines
// starting with # are ignored; malformed lines are skipped and counted.
func Parse(r io.Reader) ([]Entry, int, error) {
	var entries []Entry
	skipped := 0

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}

		entry, ok := parseLine(line)
		if !ok {
			skipped++
			continue
		}
		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("failed to scan city list: %w", err)
	}

	return entries, skipped, nil
}

func parseLine(line string) (Entry, bool) {
	parts := strings.Split(line, "\t")
	if len(parts) < 3 {
		return Entry{}, false
	}

	name := strings.TrimSpace(parts[0])
	if name == "" || utf8.RuneCountInString(name) > maxNameLength || strings.ContainsAny(name, "/&") {
		return Entry{}, false
	}

	// Negated form so NaN is out of range as well
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil || !(lat >= -90 && lat <= 90) {
		return Entry{}, false
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil || !(lon >= -180 && lon <= 180) {
		return Entry{}, false
	}

	return Entry{Name: name, Latitude: lat, Longitude: lon}, true
}

// Seed registers every entry in order. A failed registration is logged and
// does not stop the run; only context cancellation does.
func Seed(ctx context.Context, registrar Registrar, entries []Entry, logger *zap.Logger) (Result, error) {
	var res Result

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		resp, err := registrar.RegisterCity(ctx, e.Name, e.Latitude, e.Longitude)
		if err != nil {
			res.Failed++
			logger.Warn("failed to register city", zap.String("city_name", e.Name), zap.Error(err))
			continue
		}
		res.Registered++
		logger.Debug("registered city", zap.String("city_name", e.Name), zap.Int64("city_id", resp.ID))
	}

	return res, nil
}
