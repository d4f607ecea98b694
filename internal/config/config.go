// Package config loads the kiln daemon settings from configs/config.yml,
// environment variables prefixed KILN_ and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	ErrConflictingSensor = errors.New("conflicting sensor selection")
	ErrPinCollision      = errors.New("heat pin collides with a reserved pin")
	ErrInvalidTimeStep   = errors.New("invalid time step")
	ErrInvalidScale      = errors.New("invalid temperature scale")
	ErrInvalidUI         = errors.New("invalid display setting")
	ErrInvalidSimulation = errors.New("invalid simulation constant")

	// ErrUnstableSimulation means the thermal model would diverge at the
	// configured control period.
	ErrUnstableSimulation = errors.New("simulation unstable at this time step")
)

type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Oven       OvenConfig       `mapstructure:"oven"`
	PID        PIDConfig        `mapstructure:"pid"`
	Sensor     SensorConfig     `mapstructure:"sensor"`
	GPIO       GPIOConfig       `mapstructure:"gpio"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	DB         DBConfig         `mapstructure:"db"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Profiles   ProfilesConfig   `mapstructure:"profiles"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	UI         UIConfig         `mapstructure:"ui"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console | json
}

type OvenConfig struct {
	TimeStep  time.Duration `mapstructure:"time_step"`
	TempScale string        `mapstructure:"temp_scale"`
	// Simulate advances the run clock by RuntimeStep per control period.
	Simulate    bool          `mapstructure:"simulate"`
	RuntimeStep time.Duration `mapstructure:"runtime_step"`
}

type PIDConfig struct {
	Kp float64 `mapstructure:"kp"`
	Ki float64 `mapstructure:"ki"`
	Kd float64 `mapstructure:"kd"`
}

type SensorConfig struct {
	Simulate bool         `mapstructure:"simulate"`
	Serial   SerialConfig `mapstructure:"serial"`
}

type SerialConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Port    string        `mapstructure:"port"`
	Baud    int           `mapstructure:"baud"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type GPIOConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	HeatPin      int    `mapstructure:"heat_pin"`
	Invert       bool   `mapstructure:"invert"`
	SysfsRoot    string `mapstructure:"sysfs_root"`
	ReservedPins []int  `mapstructure:"reserved_pins"`
}

type SimulationConfig struct {
	TEnv    float64 `mapstructure:"t_env"`
	CHeat   float64 `mapstructure:"c_heat"`
	COven   float64 `mapstructure:"c_oven"`
	PHeat   float64 `mapstructure:"p_heat"`
	ROut    float64 `mapstructure:"r_o"`
	RHo     float64 `mapstructure:"r_ho"`
	Speedup float64 `mapstructure:"speedup"`
}

type HTTPConfig struct {
	Port string `mapstructure:"port"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type AuthConfig struct {
	SigningKey string        `mapstructure:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	// AdminUser is created on first start when the users table is empty.
	AdminUser     string `mapstructure:"admin_user"`
	AdminPassword string `mapstructure:"admin_password"`
}

type ProfilesConfig struct {
	Dir string `mapstructure:"dir"`
}

type MQTTConfig struct {
	Broker   string        `mapstructure:"broker"`
	ClientID string        `mapstructure:"client_id"`
	Topic    string        `mapstructure:"topic"`
	Interval time.Duration `mapstructure:"interval"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
}

// UIConfig is handed to dashboards as is. Times are shown in s, m or h.
type UIConfig struct {
	TimeScaleSlope   string  `mapstructure:"time_scale_slope"`
	TimeScaleProfile string  `mapstructure:"time_scale_profile"`
	KWhRate          float64 `mapstructure:"kwh_rate"`
	CurrencyType     string  `mapstructure:"currency_type"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("oven.time_step", "1s")
	v.SetDefault("oven.temp_scale", "c")
	v.SetDefault("oven.simulate", false)
	v.SetDefault("oven.runtime_step", "0s")

	v.SetDefault("pid.kp", 0.01)
	v.SetDefault("pid.ki", 0.001)
	v.SetDefault("pid.kd", 0.2)

	v.SetDefault("sensor.simulate", false)
	v.SetDefault("sensor.serial.enabled", false)
	v.SetDefault("sensor.serial.port", "/dev/ttyUSB0")
	v.SetDefault("sensor.serial.baud", 9600)
	v.SetDefault("sensor.serial.timeout", "500ms")

	v.SetDefault("gpio.enabled", false)
	v.SetDefault("gpio.heat_pin", 23)
	v.SetDefault("gpio.invert", false)
	v.SetDefault("gpio.sysfs_root", "/sys/class/gpio")
	v.SetDefault("gpio.reserved_pins", []int{7, 8, 9, 10, 11})

	v.SetDefault("simulation.t_env", 25.0)
	v.SetDefault("simulation.c_heat", 100.0)
	v.SetDefault("simulation.c_oven", 2000.0)
	v.SetDefault("simulation.p_heat", 3500.0)
	v.SetDefault("simulation.r_o", 1.0)
	v.SetDefault("simulation.r_ho", 0.1)
	v.SetDefault("simulation.speedup", 1.0)

	v.SetDefault("http.port", "8080")
	v.SetDefault("db.path", "kiln.db")
	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.token_ttl", "1h")
	v.SetDefault("auth.admin_user", "admin")
	v.SetDefault("auth.admin_password", "")
	v.SetDefault("profiles.dir", "profiles")

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "kilnd")
	v.SetDefault("mqtt.topic", "kiln/status")
	v.SetDefault("mqtt.interval", "5s")

	v.SetDefault("ui.time_scale_slope", "m")
	v.SetDefault("ui.time_scale_profile", "m")
	v.SetDefault("ui.kwh_rate", 0.26)
	v.SetDefault("ui.currency_type", "AUD")
}

// Load reads the config file at path, or configs/config.yml when path is
// empty, and validates the result. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("KILN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that must be fixed before the kiln starts.
func (c *Config) Validate() error {
	if c.Oven.TimeStep <= 0 {
		return fmt.Errorf("%w: oven.time_step=%v", ErrInvalidTimeStep, c.Oven.TimeStep)
	}
	if c.Oven.RuntimeStep < 0 {
		return fmt.Errorf("%w: oven.runtime_step=%v", ErrInvalidTimeStep, c.Oven.RuntimeStep)
	}
	switch strings.ToLower(c.Oven.TempScale) {
	case "c", "f":
		c.Oven.TempScale = strings.ToLower(c.Oven.TempScale)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidScale, c.Oven.TempScale)
	}
	if c.Sensor.Simulate && c.Sensor.Serial.Enabled {
		return fmt.Errorf("%w: sensor.simulate and sensor.serial.enabled are both set", ErrConflictingSensor)
	}
	if c.GPIO.Enabled {
		if c.GPIO.HeatPin < 0 {
			return fmt.Errorf("%w: gpio.heat_pin=%d", ErrPinCollision, c.GPIO.HeatPin)
		}
		if slices.Contains(c.GPIO.ReservedPins, c.GPIO.HeatPin) {
			return fmt.Errorf("%w: gpio.heat_pin=%d, reserved %v", ErrPinCollision, c.GPIO.HeatPin, c.GPIO.ReservedPins)
		}
	}
	if c.MQTT.Broker != "" && c.MQTT.Interval <= 0 {
		return fmt.Errorf("mqtt.interval must be positive, got %v", c.MQTT.Interval)
	}
	if err := c.validateUI(); err != nil {
		return err
	}
	if c.Oven.Simulate && !(c.Simulation.Speedup > 0) {
		return fmt.Errorf("%w: simulation.speedup=%v", ErrInvalidSimulation, c.Simulation.Speedup)
	}
	if c.SimulatedSensor() {
		return c.ValidateSimulation()
	}
	return nil
}

func (c *Config) validateUI() error {
	for key, p := range map[string]*string{
		"ui.time_scale_slope":   &c.UI.TimeScaleSlope,
		"ui.time_scale_profile": &c.UI.TimeScaleProfile,
	} {
		switch v := strings.ToLower(*p); v {
		case "s", "m", "h":
			*p = v
		default:
			return fmt.Errorf("%w: %s=%q", ErrInvalidUI, key, *p)
		}
	}
	if !(c.UI.KWhRate >= 0) || math.IsInf(c.UI.KWhRate, 0) {
		return fmt.Errorf("%w: ui.kwh_rate=%v", ErrInvalidUI, c.UI.KWhRate)
	}
	return nil
}

// ValidateSimulation checks the thermal model constants. The model takes one
// explicit Euler step per control period, and the element node only stays
// stable while oven.time_step < 2 * r_ho * c_heat.
func (c *Config) ValidateSimulation() error {
	s := c.Simulation
	for key, v := range map[string]float64{
		"simulation.c_heat": s.CHeat,
		"simulation.c_oven": s.COven,
		"simulation.r_o":    s.ROut,
		"simulation.r_ho":   s.RHo,
	} {
		if !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s=%v must be positive", ErrInvalidSimulation, key, v)
		}
	}
	if !(s.PHeat >= 0) || math.IsInf(s.PHeat, 0) {
		return fmt.Errorf("%w: simulation.p_heat=%v must not be negative", ErrInvalidSimulation, s.PHeat)
	}
	if math.IsNaN(s.TEnv) || math.IsInf(s.TEnv, 0) {
		return fmt.Errorf("%w: simulation.t_env=%v", ErrInvalidSimulation, s.TEnv)
	}
	if limit := 2 * s.RHo * s.CHeat; c.Oven.TimeStep.Seconds() >= limit {
		return fmt.Errorf("%w: oven.time_step=%v, must be below %.3gs (2 * r_ho * c_heat)",
			ErrUnstableSimulation, c.Oven.TimeStep, limit)
	}
	return nil
}

// SimulatedSensor reports whether the thermal model stands in for a real
// sensor, either by request or because none is configured.
func (c *Config) SimulatedSensor() bool {
	return !c.Sensor.Serial.Enabled
}

// SensorFallback is true when no sensor was selected at all.
func (c *Config) SensorFallback() bool {
	return !c.Sensor.Simulate && !c.Sensor.Serial.Enabled
}
