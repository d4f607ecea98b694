package hardware

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// SysfsPin is an output line driven through the Linux sysfs GPIO interface.
type SysfsPin struct {
	root  string
	pin   int
	value string
}

// NewSysfsPin exports pin under root (usually /sys/class/gpio) if needed
// and configures it as an output driven low.
func NewSysfsPin(root string, pin int) (*SysfsPin, error) {
	dir := filepath.Join(root, "gpio"+strconv.Itoa(pin))
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		if err := writeFile(filepath.Join(root, "export"), strconv.Itoa(pin)); err != nil {
			return nil, fmt.Errorf("export gpio %d: %w", pin, err)
		}
		if err := waitFor(dir, time.Second); err != nil {
			return nil, fmt.Errorf("export gpio %d: %w", pin, err)
		}
	}
	// "low" sets direction and level in one write
	if err := writeFile(filepath.Join(dir, "direction"), "low"); err != nil {
		return nil, fmt.Errorf("configure gpio %d: %w", pin, err)
	}
	return &SysfsPin{root: root, pin: pin, value: filepath.Join(dir, "value")}, nil
}

func (p *SysfsPin) Write(high bool) error {
	v := "0"
	if high {
		v = "1"
	}
	if err := writeFile(p.value, v); err != nil {
		return fmt.Errorf("write gpio %d: %w", p.pin, err)
	}
	return nil
}

// Close drives the pin low and releases it.
func (p *SysfsPin) Close() error {
	return errors.Join(
		p.Write(false),
		writeFile(filepath.Join(p.root, "unexport"), strconv.Itoa(p.pin)),
	)
}

func writeFile(path, v string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(v); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// waitFor polls until path exists; udev may need a moment after export.
func waitFor(path string, limit time.Duration) error {
	deadline := time.Now().Add(limit)
	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%s did not appear", path)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
