// SPDX-License-Identifier: MIT

package main

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/roomrec/roomrec/internal/menu"
	"github.com/roomrec/roomrec/internal/roomconfig"
	"github.com/roomrec/roomrec/internal/roomlock"
	"github.com/roomrec/roomrec/internal/urlregistry"
)

// Version information (set via ldflags during build).
var (
	Version   = "dev"
	GitCommit = "none"
	BuildDate = "unknown"
)

const (
	defaultConfigPath = roomconfig.DefaultConfigPath
	defaultURLsPath   = "/etc/roomrec/urls.txt"
	daemonServiceName = "roomrec"
	exitSuccess       = 0
	exitError         = 1
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitError)
	}
	os.Exit(exitSuccess)
}

// run is the command dispatcher, extracted for testability.
func run(args []string) error {
	if len(args) == 0 {
		return runHelp()
	}

	command := args[0]
	commandArgs := args[1:]

	switch command {
	case "help", "--help", "-h":
		return runHelp()
	case "version", "--version", "-v":
		return runVersion()
	case "validate":
		return runValidate(commandArgs)
	case "status":
		return runStatus(commandArgs)
	case "migrate":
		return runMigrate(commandArgs)
	case "backups":
		return runBackups(commandArgs)
	case "rooms":
		return runRooms(commandArgs)
	case "menu":
		return runMenu(commandArgs)
	default:
		return fmt.Errorf("unknown command: %s (run 'roomrecctl help' for usage)", command)
	}
}

// runHelp displays usage information.
func runHelp() error {
	fmt.Printf(`roomrecctl v%s

USAGE:
    roomrecctl [COMMAND] [OPTIONS]

COMMANDS:
    help                     Show this help message
    version                  Show version information
    validate                 Validate the recording configuration file
    status                   Show daemon and room status
    migrate                  Normalize the config file to the current key set
    backups list             List configuration backups
    backups restore NAME     Restore a configuration backup by name
    rooms list               List monitored rooms from the URL list
    rooms add URL            Append a room to the URL list
    rooms comment URL        Toggle a room's comment state
    menu                     Launch the interactive management menu

OPTIONS:
    --config PATH   Path to the recording config file (default: %s)
    --urls PATH     Path to the monitored URL list (default: %s)

EXAMPLES:
    roomrecctl validate --config=/etc/roomrec/config.ini
    roomrecctl status
    roomrecctl rooms add https://example.com/live/1234
    roomrecctl rooms comment https://example.com/live/1234
    roomrecctl backups list
    roomrecctl backups restore config.ini.2026-07-29T10-00-00.bak
`, Version, defaultConfigPath, defaultURLsPath)
	return nil
}

// runVersion displays version information.
func runVersion() error {
	fmt.Printf("roomrecctl\n")
	fmt.Printf("  Version:    %s\n", Version)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
	fmt.Printf("  Built:      %s\n", BuildDate)
	return nil
}

// runValidate loads the config file and the URL list and reports whether
// both parse cleanly, without starting anything that needs the shared lock.
func runValidate(args []string) error {
	configPath := flagValue(args, "--config", defaultConfigPath)
	urlsPath := flagValue(args, "--urls", defaultURLsPath)

	fmt.Printf("Validating configuration: %s\n\n", configPath)

	store, err := roomconfig.Open(configPath, nil)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := store.Snapshot()

	fmt.Println("✓ Configuration is valid")
	fmt.Printf("✓ Concurrency preset: %d\n", cfg.RecordingSettings.ConcurrencyPreset)
	fmt.Printf("✓ Container: %s, Quality: %s\n", cfg.RecordingSettings.Container, cfg.RecordingSettings.Quality)

	rooms, err := readRooms(urlsPath)
	if err != nil {
		return fmt.Errorf("failed to read url list %s: %w", urlsPath, err)
	}
	active := 0
	for _, r := range rooms {
		if !r.Commented {
			active++
		}
	}
	fmt.Printf("✓ URL list %s: %d room(s), %d active\n", urlsPath, len(rooms), active)

	return nil
}

// runMigrate re-saves the config file, filling in any key documented in the
// current schema that an older file is missing.
func runMigrate(args []string) error {
	configPath := flagValue(args, "--config", defaultConfigPath)

	store, err := roomconfig.Open(configPath, nil)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := store.Save(); err != nil {
		return fmt.Errorf("failed to rewrite config: %w", err)
	}

	fmt.Printf("Config file %s normalized to the current key set.\n", configPath)
	return nil
}

// runStatus reports the daemon's systemd status plus a static read of the
// URL list, mirroring the teacher's own lock-file-and-systemctl approach
// rather than talking to the running process over an IPC channel.
func runStatus(args []string) error {
	configPath := flagValue(args, "--config", defaultConfigPath)
	urlsPath := flagValue(args, "--urls", defaultURLsPath)
	lockDir := flagValue(args, "--lock-dir", "/var/run/roomrec")

	fmt.Println("roomrec Status")
	fmt.Println("==============")
	fmt.Println()

	fmt.Printf("Service: %s\n", getServiceStatus(daemonServiceName))

	if _, err := os.Stat(filepath.Join(lockDir, "roomrec.lock")); err == nil {
		fmt.Println("Lock:    held (daemon appears to be running)")
	} else {
		fmt.Println("Lock:    not held")
	}
	fmt.Println()

	store, err := roomconfig.Open(configPath, nil)
	if err != nil {
		fmt.Printf("Config:  error loading %s: %v\n", configPath, err)
	} else {
		cfg := store.Snapshot()
		fmt.Printf("Config:  %s (container=%s quality=%s preset=%d)\n",
			configPath, cfg.RecordingSettings.Container, cfg.RecordingSettings.Quality, cfg.RecordingSettings.ConcurrencyPreset)
	}
	fmt.Println()

	rooms, err := readRooms(urlsPath)
	if err != nil {
		fmt.Printf("Rooms:   error reading %s: %v\n", urlsPath, err)
		return nil
	}

	fmt.Printf("Rooms (%s):\n", urlsPath)
	if len(rooms) == 0 {
		fmt.Println("  (no rooms configured)")
		return nil
	}
	for _, r := range rooms {
		state := "active"
		if r.Commented {
			state = "disabled"
		}
		label := r.DisplayName
		if label == "" {
			label = r.Anchor
		}
		fmt.Printf("  - %s [%s] %s\n", r.URL, state, label)
	}

	return nil
}

// runBackups dispatches the "backups" subcommand group.
func runBackups(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: roomrecctl backups list|restore NAME")
	}
	switch args[0] {
	case "list":
		return runBackupsList(args[1:])
	case "restore":
		return runBackupsRestore(args[1:])
	default:
		return fmt.Errorf("unknown backups subcommand: %s", args[0])
	}
}

func runBackupsList(args []string) error {
	configPath := flagValue(args, "--config", defaultConfigPath)
	backupDir := filepath.Join(filepath.Dir(configPath), "backups")

	backups, err := roomconfig.ListBackups(backupDir, filepath.Base(configPath))
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}
	if len(backups) == 0 {
		fmt.Println("(no backups)")
		return nil
	}
	for _, b := range backups {
		fmt.Printf("%s  %8d bytes  %s\n", b.Timestamp.Format("2006-01-02 15:04:05"), b.Size, b.Name)
	}
	return nil
}

func runBackupsRestore(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: roomrecctl backups restore NAME")
	}
	name := args[0]
	configPath := flagValue(args[1:], "--config", defaultConfigPath)
	backupDir := filepath.Join(filepath.Dir(configPath), "backups")

	if err := roomconfig.RestoreBackup(filepath.Join(backupDir, name), configPath); err != nil {
		return fmt.Errorf("failed to restore backup: %w", err)
	}
	fmt.Printf("Restored %s from backup %s\n", configPath, name)
	return nil
}

// runRooms dispatches the "rooms" subcommand group.
func runRooms(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: roomrecctl rooms list|add URL|comment URL")
	}
	switch args[0] {
	case "list":
		return runRoomsList(args[1:])
	case "add":
		return runRoomsAdd(args[1:])
	case "comment":
		return runRoomsComment(args[1:])
	default:
		return fmt.Errorf("unknown rooms subcommand: %s", args[0])
	}
}

func runRoomsList(args []string) error {
	urlsPath := flagValue(args, "--urls", defaultURLsPath)

	rooms, err := readRooms(urlsPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", urlsPath, err)
	}
	if len(rooms) == 0 {
		fmt.Println("(no rooms configured)")
		return nil
	}
	for _, r := range rooms {
		state := "active"
		if r.Commented {
			state = "disabled"
		}
		fmt.Printf("%s  %s\n", state, r.URL)
	}
	return nil
}

// runRoomsAdd appends url as a new line to the URL list, under the shared
// file lock so it can't race the daemon's own scan-and-rewrite.
func runRoomsAdd(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: roomrecctl rooms add URL")
	}
	url := args[0]
	lockDir := flagValue(args[1:], "--lock-dir", "/var/run/roomrec")
	urlsPath := flagValue(args[1:], "--urls", defaultURLsPath)

	lock, err := roomlock.New(filepath.Join(lockDir, "roomrec.lock"))
	if err != nil {
		return fmt.Errorf("failed to open lock: %w", err)
	}
	defer lock.Close()

	if err := lock.Acquire(roomlock.DefaultAcquireTimeout); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer lock.Release()

	f, err := os.OpenFile(urlsPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", urlsPath, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s\n", url); err != nil {
		return fmt.Errorf("failed to append room: %w", err)
	}

	fmt.Printf("Added room %s to %s\n", url, urlsPath)
	return nil
}

// runRoomsComment toggles the leading '#' on the line matching url's
// canonical form, following the same read-rewrite-rename discipline as
// urlregistry's own scan.
func runRoomsComment(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: roomrecctl rooms comment URL")
	}
	target := args[0]
	lockDir := flagValue(args[1:], "--lock-dir", "/var/run/roomrec")
	urlsPath := flagValue(args[1:], "--urls", defaultURLsPath)

	canonicalTarget, err := urlregistry.Canonicalize(target)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	lock, err := roomlock.New(filepath.Join(lockDir, "roomrec.lock"))
	if err != nil {
		return fmt.Errorf("failed to open lock: %w", err)
	}
	defer lock.Close()

	if err := lock.Acquire(roomlock.DefaultAcquireTimeout); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer lock.Release()

	raw, err := os.ReadFile(urlsPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", urlsPath, err)
	}

	lines := strings.Split(string(raw), "\n")
	matched := false
	nowDisabled := false
	for i, line := range lines {
		room, ok := urlregistry.ParseLine(line)
		if !ok {
			continue
		}
		canonical, err := urlregistry.Canonicalize(room.URL)
		if err != nil || canonical != canonicalTarget {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			lines[i] = strings.TrimPrefix(trimmed, "#")
			nowDisabled = false
		} else {
			lines[i] = "#" + line
			nowDisabled = true
		}
		matched = true
		break
	}
	if !matched {
		return fmt.Errorf("no room matching %s found in %s", target, urlsPath)
	}

	tmp := urlsPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(strings.Join(lines, "\n")), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, urlsPath); err != nil {
		return fmt.Errorf("failed to replace %s: %w", urlsPath, err)
	}

	if nowDisabled {
		fmt.Printf("Disabled room %s\n", target)
	} else {
		fmt.Printf("Re-enabled room %s\n", target)
	}
	return nil
}

// runMenu launches the interactive management menu.
func runMenu(args []string) error {
	m := menu.CreateMainMenu()
	return m.Display()
}

// readRooms parses every line of path into Rooms, skipping blank or
// unparsable lines, without requiring the shared lock (read-only).
func readRooms(path string) ([]urlregistry.Room, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var rooms []urlregistry.Room
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		room, ok := urlregistry.ParseLine(scanner.Text())
		if !ok {
			continue
		}
		rooms = append(rooms, room)
	}
	return rooms, scanner.Err()
}

// flagValue returns the value of --name or --name=value in args, or def.
func flagValue(args []string, name, def string) string {
	prefix := name + "="
	for i := 0; i < len(args); i++ {
		if args[i] == name && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(args[i], prefix) {
			return strings.TrimPrefix(args[i], prefix)
		}
	}
	return def
}

// getServiceStatus checks systemd service status.
func getServiceStatus(serviceName string) string {
	cmd := exec.Command("systemctl", "is-active", serviceName) // #nosec G204 -- serviceName is a controlled constant, not user input
	output, err := cmd.Output()
	if err != nil {
		return "not running (or systemd unavailable)"
	}
	return strings.TrimSpace(string(output))
}
