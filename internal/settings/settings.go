// Package settings persists device configuration with an integrity check.
//
// Values live in a single JSON file next to an MD5 of their canonical
// encoding. Any corruption (missing file, bad JSON, checksum mismatch)
// resolves to factory defaults, which are persisted immediately so the next
// boot is clean. Writes go through a temp file and rename.
package settings

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrInvalid marks a rejected settings update.
var ErrInvalid = errors.New("invalid settings")

// minPasswordLen is the WPA2 minimum for the access point password.
const minPasswordLen = 8

// Values is the full persisted configuration. Durations are stored as
// milliseconds so the file stays editable by hand.
type Values struct {
	MaxNearRSSI            int     `json:"maxNearRssi"`
	CloseRSSI              int     `json:"closeRssi"`
	MaxNotSeenMillis       int64   `json:"maxNotSeenMillis"`
	LearnDurationMillis    int64   `json:"learnDurationMillis"`
	WifiOnThresholdMillis  int64   `json:"wifiOnThresholdMillis"`
	WifiOffThresholdMillis int64   `json:"wifiOffThresholdMillis"`
	LearnThresholdMillis   int64   `json:"learnThresholdMillis"`
	FactoryThresholdMillis int64   `json:"factoryResetThresholdMillis"`
	Paired                 *string `json:"paired"`
	APPassword             string  `json:"apPassword"`
	Startups               int     `json:"startups"`
}

// Defaults returns the factory configuration. Unpaired.
func Defaults() Values {
	return Values{
		MaxNearRSSI:            -80,
		CloseRSSI:              -50,
		MaxNotSeenMillis:       60000,
		LearnDurationMillis:    10000,
		WifiOnThresholdMillis:  1500,
		WifiOffThresholdMillis: 5000,
		LearnThresholdMillis:   5000,
		FactoryThresholdMillis: 30000,
		APPassword:             "P@ssw0rd123",
	}
}

// fileEnvelope is the on-disk format: values plus the integrity sentinel.
type fileEnvelope struct {
	Values Values `json:"values"`
	MD5    string `json:"md5"`
}

func checksum(v Values) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode values: %w", err)
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}

// Store owns the persisted configuration. Safe for concurrent use: the
// portal's HTTP handlers read and write it while the control loop reads it.
type Store struct {
	path string
	log  *zap.Logger

	mu   sync.Mutex
	vals Values
}

// NewStore creates a store backed by the file at path. Call Load before
// first use; until then the store carries factory defaults.
func NewStore(path string, log *zap.Logger) *Store {
	return &Store{path: path, log: log, vals: Defaults()}
}

// Load reads the settings file. Corruption of any kind resolves to factory
// defaults, which are persisted so the next load succeeds. After a clean
// read the press thresholds are checked for strict ordering; violations
// restore the default thresholds.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		s.log.Warn("settings unreadable, using factory defaults", zap.Error(err))
		return s.factoryDefaultLocked()
	}

	var env fileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.log.Warn("settings corrupt, using factory defaults", zap.Error(err))
		return s.factoryDefaultLocked()
	}

	sum, err := checksum(env.Values)
	if err != nil {
		return err
	}
	if sum != env.MD5 {
		s.log.Warn("settings integrity check failed, using factory defaults",
			zap.String("stored", env.MD5),
			zap.String("computed", sum))
		return s.factoryDefaultLocked()
	}

	s.vals = env.Values
	s.clampThresholdsLocked()
	return nil
}

// clampThresholdsLocked restores the default press thresholds when the
// stored ones are not strictly ordered wifiOn < learn < factoryReset.
func (s *Store) clampThresholdsLocked() {
	if thresholdsOrdered(s.vals) {
		return
	}
	def := Defaults()
	s.log.Warn("press thresholds out of order, restoring defaults",
		zap.Int64("wifiOn", s.vals.WifiOnThresholdMillis),
		zap.Int64("learn", s.vals.LearnThresholdMillis),
		zap.Int64("factoryReset", s.vals.FactoryThresholdMillis))
	s.vals.WifiOnThresholdMillis = def.WifiOnThresholdMillis
	s.vals.LearnThresholdMillis = def.LearnThresholdMillis
	s.vals.FactoryThresholdMillis = def.FactoryThresholdMillis
}

func thresholdsOrdered(v Values) bool {
	return v.WifiOnThresholdMillis < v.LearnThresholdMillis &&
		v.LearnThresholdMillis < v.FactoryThresholdMillis
}

// Save persists the current values.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	sum, err := checksum(s.vals)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(fileEnvelope{Values: s.vals, MD5: sum}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

// FactoryDefault resets every value, including the pairing and the startup
// counter, and persists the result.
func (s *Store) FactoryDefault() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.factoryDefaultLocked()
}

func (s *Store) factoryDefaultLocked() error {
	s.vals = Defaults()
	return s.saveLocked()
}

// Update validates and installs a full set of values from the settings
// form. The pairing and the startup counter are preserved. Violations
// return an error wrapping ErrInvalid and change nothing.
func (s *Store) Update(v Values) error {
	if !thresholdsOrdered(v) {
		return fmt.Errorf("%w: press thresholds must satisfy wifiOn < learn < factoryReset", ErrInvalid)
	}
	if v.MaxNotSeenMillis <= 0 {
		return fmt.Errorf("%w: maxNotSeenMillis must be positive", ErrInvalid)
	}
	if v.LearnDurationMillis <= 0 {
		return fmt.Errorf("%w: learnDurationMillis must be positive", ErrInvalid)
	}
	if len(v.APPassword) < minPasswordLen {
		return fmt.Errorf("%w: access point password must be at least %d characters", ErrInvalid, minPasswordLen)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v.Paired = s.vals.Paired
	v.Startups = s.vals.Startups
	s.vals = v
	return s.saveLocked()
}

// LogStartup bumps the persisted startup counter and returns the new count.
func (s *Store) LogStartup() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vals.Startups++
	if err := s.saveLocked(); err != nil {
		return s.vals.Startups, err
	}
	return s.vals.Startups, nil
}

// SetPaired persists id as the pairing target.
func (s *Store) SetPaired(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vals.Paired = &id
	return s.saveLocked()
}

// Paired returns the pairing target. The second return is false when
// unpaired.
func (s *Store) Paired() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vals.Paired == nil {
		return "", false
	}
	return *s.vals.Paired, true
}

// Values returns a copy of the current configuration.
func (s *Store) Values() Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vals
}

// Scalar accessors used by the control loop.

func (s *Store) NearRSSI() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vals.MaxNearRSSI
}

func (s *Store) CloseRSSI() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vals.CloseRSSI
}

func (s *Store) MaxNotSeen() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.vals.MaxNotSeenMillis) * time.Millisecond
}

func (s *Store) LearnDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.vals.LearnDurationMillis) * time.Millisecond
}

func (s *Store) WifiOnThreshold() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.vals.WifiOnThresholdMillis) * time.Millisecond
}

func (s *Store) WifiOffThreshold() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.vals.WifiOffThresholdMillis) * time.Millisecond
}

func (s *Store) LearnThreshold() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.vals.LearnThresholdMillis) * time.Millisecond
}

func (s *Store) FactoryResetThreshold() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.vals.FactoryThresholdMillis) * time.Millisecond
}

func (s *Store) APPassword() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vals.APPassword
}

func (s *Store) Startups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vals.Startups
}
