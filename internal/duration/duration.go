// Package duration parses config durations that may use day and week
// suffixes ("7d", "2w") on top of what time.ParseDuration accepts.
package duration

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/spf13/pflag"
)

const (
	Day  = 24 * time.Hour
	Week = 7 * Day
)

var suffixes = []struct {
	suffix string
	unit   time.Duration
}{
	{"d", Day},
	{"w", Week},
}

// Parse accepts anything time.ParseDuration does, plus a bare number of
// seconds and fractional day or week counts.
func Parse(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("duration: empty value")
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	for _, sfx := range suffixes {
		if n, ok := strings.CutSuffix(s, sfx.suffix); ok {
			return scale(s, n, sfx.unit)
		}
	}
	return scale(s, s, time.Second)
}

func scale(orig, num string, unit time.Duration) (time.Duration, error) {
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, errors.Errorf("duration: invalid value %q", orig)
	}
	return time.Duration(f * float64(unit)), nil
}

// Value is a pflag.Value backed by a time.Duration.
type Value time.Duration

func (d *Value) String() string {
	v := time.Duration(*d)
	if v != 0 && v%Day == 0 {
		return strconv.FormatInt(int64(v/Day), 10) + "d"
	}
	return v.String()
}

func (d *Value) Set(s string) error {
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*d = Value(v)
	return nil
}

func (d *Value) Type() string { return "duration" }

// Var registers a duration flag that understands day and week suffixes.
func Var(f *pflag.FlagSet, p *time.Duration, name string, value time.Duration, usage string) {
	*p = value
	f.Var((*Value)(p), name, usage)
}
