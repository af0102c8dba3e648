// Package profile describes the simulated machine: tick rate, memory
// figures and console geometry, loadable from a YAML file.
package profile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Console is the console window geometry.
type Console struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Title  string `yaml:"title"`
}

// Serial configures an optional bridge to a real serial device.
type Serial struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// Profile is a machine profile.
type Profile struct {
	TickHz       uint32  `yaml:"tick_hz"`
	Preemptive   bool    `yaml:"preemptive"`
	DefaultStack uint16  `yaml:"default_stack"`
	HeapBytes    uint64  `yaml:"heap_bytes"`
	Console      Console `yaml:"console"`
	Serial       Serial  `yaml:"serial"`
}

// Default returns the stock profile: preemptive scheduling at 1 kHz with
// a 1 MiB heap and a 480x320 console.
func Default() Profile {
	return Profile{
		TickHz:       1000,
		Preemptive:   true,
		DefaultStack: 1024,
		HeapBytes:    1 << 20,
		Console: Console{
			Width:  480,
			Height: 320,
			Title:  "Linmo",
		},
	}
}

// Load reads a profile file. Fields absent from the file keep their
// defaults.
func Load(path string) (Profile, error) {
	p := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("profile %s: %w", path, err)
	}
	if err := p.validate(); err != nil {
		return p, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

func (p *Profile) validate() error {
	if p.TickHz == 0 || p.TickHz > 1_000_000 {
		return fmt.Errorf("tick_hz %d out of range", p.TickHz)
	}
	if p.Console.Width <= 0 || p.Console.Height <= 0 {
		return fmt.Errorf("console geometry %dx%d invalid", p.Console.Width, p.Console.Height)
	}
	return nil
}
