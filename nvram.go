package main

import (
	"encoding/hex"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"hkcountdown/internal/requirements"
)

const pairingSuffix = ".pairing"

// nvramRunner wraps the router's nvram command.
type nvramRunner interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Unset(key string) error
	Commit() error
	Show() (string, error)
}

type execNvram struct{}

func (execNvram) Get(key string) (string, error) {
	out, err := exec.Command("nvram", "get", key).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (execNvram) Set(key, value string) error {
	return exec.Command("nvram", "set", key+"="+value).Run()
}

func (execNvram) Unset(key string) error {
	return exec.Command("nvram", "unset", key).Run()
}

func (execNvram) Commit() error {
	return exec.Command("nvram", "commit").Run()
}

func (execNvram) Show() (string, error) {
	out, err := exec.Command("nvram", "show").Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// nvramStore is a hap.Store on router NVRAM, one variable per key.
//
// Flash has limited write cycles, so only pairing changes are committed.
// Everything else lives in NVRAM RAM and is regenerated after a power loss
// that happens before the first pairing; once paired, the commit carries all
// pending changes so keypair and pairing stay in sync.
type nvramStore struct {
	mu     sync.RWMutex
	prefix string
	nvram  nvramRunner
	log    logrus.FieldLogger
}

func newNvramStore(prefix string, nvram nvramRunner, log logrus.FieldLogger) *nvramStore {
	return &nvramStore{
		prefix: prefix,
		nvram:  nvram,
		log:    log.WithField("component", "nvram"),
	}
}

// key maps a store key to an NVRAM variable. Pairing keys are hex-encoded
// UUIDs and are stored under their readable form.
func (s *nvramStore) key(key string) string {
	if hexName, ok := strings.CutSuffix(key, pairingSuffix); ok {
		if name, err := hex.DecodeString(hexName); err == nil {
			return s.prefix + "p_" + string(name)
		}
	}
	return s.prefix + key
}

// Set stores text values as-is and hex-encodes the binary configHash.
func (s *nvramStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	encoded := string(value)
	if key == "configHash" {
		encoded = hex.EncodeToString(value)
	}

	if err := s.nvram.Set(s.key(key), encoded); err != nil {
		return fmt.Errorf("nvram set %s: %w", key, err)
	}
	if strings.HasSuffix(key, pairingSuffix) {
		return s.commit()
	}
	return nil
}

func (s *nvramStore) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, err := s.nvram.Get(s.key(key))
	if err != nil {
		return nil, fmt.Errorf("nvram get %s: %w", key, err)
	}
	if value == "" {
		return nil, fmt.Errorf("no entry for key %s", key)
	}
	if key == "configHash" {
		return hex.DecodeString(value)
	}
	return []byte(value), nil
}

func (s *nvramStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.nvram.Unset(s.key(key)); err != nil {
		return fmt.Errorf("nvram unset %s: %w", key, err)
	}
	if strings.HasSuffix(key, pairingSuffix) {
		return s.commit()
	}
	return nil
}

// KeysWithSuffix lists store keys ending in suffix, rebuilding the hex form
// of pairing keys.
func (s *nvramStore) KeysWithSuffix(suffix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out, err := s.nvram.Show()
	if err != nil {
		return nil, fmt.Errorf("nvram show: %w", err)
	}

	var keys []string
	for _, line := range strings.Split(out, "\n") {
		name, _, ok := strings.Cut(line, "=")
		if !ok || !strings.HasPrefix(name, s.prefix) {
			continue
		}

		if uuid, ok := strings.CutPrefix(name, s.prefix+"p_"); ok {
			if suffix == pairingSuffix {
				keys = append(keys, hex.EncodeToString([]byte(uuid))+pairingSuffix)
			}
			continue
		}
		if key := strings.TrimPrefix(name, s.prefix); strings.HasSuffix(key, suffix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *nvramStore) commit() error {
	s.log.Info("committing NVRAM to flash")
	if err := s.nvram.Commit(); err != nil {
		return fmt.Errorf("nvram commit: %w", err)
	}
	return nil
}

// storeRequirement reports whether the pairing store can be listed.
func storeRequirement(store interface {
	KeysWithSuffix(string) ([]string, error)
}) requirements.Provider {
	return requirements.ProviderFunc{
		ID: "store",
		Check: func() requirements.Status {
			if _, err := store.KeysWithSuffix(pairingSuffix); err != nil {
				return requirements.Status{Error: fmt.Sprintf("pairing store unavailable: %v", err)}
			}
			return requirements.Status{}
		},
	}
}
