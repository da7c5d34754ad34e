// SPDX-License-Identifier: MIT

// Package roomconfig is the ConfigStore: it owns the recording config file
// (an INI file with sections RecordingSettings, PushSettings, Cookie,
// Authorization, Credentials), loads it with koanf layered over an
// environment-variable overlay, fills in documented defaults for missing
// keys, and writes changes back atomically under the shared room lock.
//
// The atomic-write and koanf-layering discipline (parse with koanf, apply
// an env.Provider overlay, write via a temp-file-then-rename with fsync)
// is adapted from the teacher's internal/config package, retargeted from
// YAML to the spec's sectioned INI format.
package roomconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/knadh/koanf/parsers/ini"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	iniv1 "gopkg.in/ini.v1"

	"github.com/roomrec/roomrec/internal/roomlock"
)

// DefaultConfigPath is where the daemon looks for its config file absent
// an override.
const DefaultConfigPath = "/etc/roomrec/config.ini"

// EnvPrefix is the prefix environment-variable overrides must carry, e.g.
// ROOMREC_RECORDINGSETTINGS_LOOP_SECONDS.
const EnvPrefix = "ROOMREC_"

// RecordingSettings mirrors the on-disk [RecordingSettings] section.
type RecordingSettings struct {
	SavePath            string  `koanf:"save_path"`
	FolderByAuthor       bool    `koanf:"folder_by_author"`
	FolderByTime         bool    `koanf:"folder_by_time"`
	FolderByTitle        bool    `koanf:"folder_by_title"`
	Container            string  `koanf:"container"`
	Quality              string  `koanf:"quality"`
	ConcurrencyPreset    int     `koanf:"concurrency_preset"`
	LoopSeconds          int     `koanf:"loop_seconds"`
	SegmentEnabled       bool    `koanf:"segment_enabled"`
	SegmentSeconds       int     `koanf:"segment_seconds"`
	ConvertToMP4         bool    `koanf:"convert_to_mp4"`
	ReencodeH264         bool    `koanf:"reencode_h264"`
	DeleteSource         bool    `koanf:"delete_source"`
	DiskSpaceFloorGiB    float64 `koanf:"disk_space_floor_gib"`
	ProxyHosts           string  `koanf:"proxy_hosts"`
	ProxyExtraHosts      string  `koanf:"proxy_extra_hosts"`
	NotificationChannels string  `koanf:"notification_channels"`
	PushOnly             bool    `koanf:"push_only"`
	PushCheckIntervalSec int     `koanf:"push_check_interval"`
}

// PushSettings mirrors the on-disk [PushSettings] section: per-channel
// dispatch configuration consulted by internal/notify.
type PushSettings struct {
	WebhookURL string `koanf:"webhook_url"`
	Template   string `koanf:"template"`
}

// Config is the full in-memory view of the recording config file. Cookie,
// Authorization, and Credentials are free-form per-platform key/value
// sections, since the platforms they cover are not part of the core.
type Config struct {
	RecordingSettings RecordingSettings `koanf:"RecordingSettings"`
	PushSettings      PushSettings      `koanf:"PushSettings"`
	Cookie            map[string]string `koanf:"Cookie"`
	Authorization     map[string]string `koanf:"Authorization"`
	Credentials       map[string]string `koanf:"Credentials"`
}

// Default returns the documented defaults from the external-interfaces key
// table: everything off except folder-by-author, TS container, Original
// quality, a concurrency preset of 3, and a 1 GiB disk floor.
func Default() *Config {
	return &Config{
		RecordingSettings: RecordingSettings{
			SavePath:             "",
			FolderByAuthor:       true,
			FolderByTime:         false,
			FolderByTitle:        false,
			Container:            "TS",
			Quality:              "Original",
			ConcurrencyPreset:    3,
			LoopSeconds:          120,
			SegmentEnabled:       false,
			SegmentSeconds:       1800,
			ConvertToMP4:         false,
			ReencodeH264:         false,
			DeleteSource:         false,
			DiskSpaceFloorGiB:    1.0,
			ProxyHosts:           "",
			ProxyExtraHosts:      "",
			NotificationChannels: "",
			PushOnly:             false,
			PushCheckIntervalSec: 1800,
		},
		Cookie:        map[string]string{},
		Authorization: map[string]string{},
		Credentials:   map[string]string{},
	}
}

// ResolvedSavePath returns SavePath, or scriptDir/downloads when unset.
func (c *Config) ResolvedSavePath(scriptDir string) string {
	if c.RecordingSettings.SavePath != "" {
		return c.RecordingSettings.SavePath
	}
	return filepath.Join(scriptDir, "downloads")
}

// Store owns one config file: loading with koanf + an env overlay, applying
// missing-key defaults, and atomic writes under the shared room lock.
type Store struct {
	path string
	lock *roomlock.FileLock

	mu  sync.RWMutex
	cfg *Config
}

// Open loads path (creating it with documented defaults if absent) and
// returns a Store. lock is the process-wide file-update mutex shared with
// urlregistry.
func Open(path string, lock *roomlock.FileLock) (*Store, error) {
	s := &Store{path: path, lock: lock}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load re-reads the config file, layering environment overrides on top,
// and fills in any key missing from the file with its documented default.
// On a parse failure the store keeps its previous in-memory value.
func (s *Store) Load() error {
	k := koanf.New(".")

	if _, err := os.Stat(s.path); err == nil {
		if err := k.Load(file.Provider(s.path), ini.Parser()); err != nil {
			return fmt.Errorf("roomconfig: parse %s: %w", s.path, err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return envKeyToPath(key), value
		},
	}), nil); err != nil {
		return fmt.Errorf("roomconfig: env overlay: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return fmt.Errorf("roomconfig: unmarshal: %w", err)
	}

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	// Missing keys were filled with documented defaults in memory. Only a
	// file that does not exist yet is written here, so it is self-documenting
	// from the first run; keys missing from an existing file reach the disk
	// on the next Save.
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return s.Save()
	}
	return nil
}

// envKeyToPath maps ROOMREC_RECORDINGSETTINGS_LOOP_SECONDS to the koanf
// path "RecordingSettings.loop_seconds".
func envKeyToPath(key string) string {
	// key arrives without the EnvPrefix, upper-cased, words separated by "_".
	for _, section := range []string{"RECORDINGSETTINGS", "PUSHSETTINGS", "COOKIE", "AUTHORIZATION", "CREDENTIALS"} {
		if len(key) > len(section) && key[:len(section)] == section && key[len(section)] == '_' {
			field := key[len(section)+1:]
			return sectionName(section) + "." + toLowerUnderscore(field)
		}
	}
	return key
}

func sectionName(upper string) string {
	switch upper {
	case "RECORDINGSETTINGS":
		return "RecordingSettings"
	case "PUSHSETTINGS":
		return "PushSettings"
	case "COOKIE":
		return "Cookie"
	case "AUTHORIZATION":
		return "Authorization"
	case "CREDENTIALS":
		return "Credentials"
	default:
		return upper
	}
}

func iniBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func toLowerUnderscore(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c - 'A' + 'a'
		}
	}
	return string(b)
}

// Snapshot returns a copy of the current config safe to read without
// further locking.
func (s *Store) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.cfg
}

// Set replaces the whole in-memory Config and persists it. If the write
// fails, the in-memory value stays replaced and Save's error is returned.
func (s *Store) Set(cfg Config) error {
	s.mu.Lock()
	s.cfg = &cfg
	s.mu.Unlock()
	return s.Save()
}

// Save writes the config back to disk atomically under the shared lock,
// using gopkg.in/ini.v1 directly so the on-disk section/key layout matches
// the documented external format exactly.
func (s *Store) Save() error {
	s.mu.RLock()
	cfg := *s.cfg
	s.mu.RUnlock()

	if s.lock != nil {
		if err := s.lock.Acquire(roomlock.DefaultAcquireTimeout); err != nil {
			return fmt.Errorf("roomconfig: acquire lock: %w", err)
		}
		defer s.lock.Release()
	}

	f := iniv1.Empty()

	rs, err := f.NewSection("RecordingSettings")
	if err != nil {
		return err
	}
	r := cfg.RecordingSettings
	for k, v := range map[string]string{
		"save_path":             r.SavePath,
		"folder_by_author":      iniBool(r.FolderByAuthor),
		"folder_by_time":        iniBool(r.FolderByTime),
		"folder_by_title":       iniBool(r.FolderByTitle),
		"container":             r.Container,
		"quality":               r.Quality,
		"concurrency_preset":    fmt.Sprintf("%d", r.ConcurrencyPreset),
		"loop_seconds":          fmt.Sprintf("%d", r.LoopSeconds),
		"segment_enabled":       iniBool(r.SegmentEnabled),
		"segment_seconds":       fmt.Sprintf("%d", r.SegmentSeconds),
		"convert_to_mp4":        iniBool(r.ConvertToMP4),
		"reencode_h264":         iniBool(r.ReencodeH264),
		"delete_source":         iniBool(r.DeleteSource),
		"disk_space_floor_gib":  fmt.Sprintf("%g", r.DiskSpaceFloorGiB),
		"proxy_hosts":           r.ProxyHosts,
		"proxy_extra_hosts":     r.ProxyExtraHosts,
		"notification_channels": r.NotificationChannels,
		"push_only":             iniBool(r.PushOnly),
		"push_check_interval":   fmt.Sprintf("%d", r.PushCheckIntervalSec),
	} {
		if _, err := rs.NewKey(k, v); err != nil {
			return fmt.Errorf("roomconfig: write RecordingSettings.%s: %w", k, err)
		}
	}

	ps, err := f.NewSection("PushSettings")
	if err != nil {
		return err
	}
	for k, v := range map[string]string{
		"webhook_url": cfg.PushSettings.WebhookURL,
		"template":    cfg.PushSettings.Template,
	} {
		if _, err := ps.NewKey(k, v); err != nil {
			return fmt.Errorf("roomconfig: write PushSettings.%s: %w", k, err)
		}
	}

	for name, m := range map[string]map[string]string{
		"Cookie":        cfg.Cookie,
		"Authorization": cfg.Authorization,
		"Credentials":   cfg.Credentials,
	} {
		sec, err := f.NewSection(name)
		if err != nil {
			return err
		}
		for k, v := range m {
			if _, err := sec.NewKey(k, v); err != nil {
				return err
			}
		}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("roomconfig: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.ini.tmp")
	if err != nil {
		return fmt.Errorf("roomconfig: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := f.WriteTo(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("roomconfig: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("roomconfig: sync temp: %w", err)
	}
	if err := tmp.Chmod(0640); err != nil {
		tmp.Close()
		return fmt.Errorf("roomconfig: chmod temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("roomconfig: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("roomconfig: rename temp: %w", err)
	}
	success = true
	return nil
}
