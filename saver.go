package spotapi

import (
	"encoding/json"
	"os"
	"sync"
)

// Credentials is the portable snapshot of an authenticated session: the
// account identifier and the session cookies captured after a successful
// login.
type Credentials struct {
	Identifier string            `json:"identifier"`
	Password   string            `json:"password,omitempty"`
	Cookies    map[string]string `json:"cookies"`
}

// Saver persists session credentials between runs so sessions can be
// restored without replaying the interactive login flow.
type Saver interface {
	Save(creds Credentials) error
	Load(identifier string) (Credentials, error)
}

// FileSaver stores credentials as a JSON map keyed by identifier in a
// single file.
type FileSaver struct {
	mu   sync.Mutex
	Path string
}

func NewFileSaver(path string) *FileSaver {
	return &FileSaver{Path: path}
}

func (f *FileSaver) Save(creds Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.read()
	if err != nil {
		return err
	}
	all[creds.Identifier] = creds

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.Path, data, 0o644)
}

func (f *FileSaver) Load(identifier string) (Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	all, err := f.read()
	if err != nil {
		return Credentials{}, err
	}
	creds, ok := all[identifier]
	if !ok {
		return Credentials{}, newClientError("no saved credentials for "+identifier, "")
	}
	return creds, nil
}

func (f *FileSaver) read() (map[string]Credentials, error) {
	all := map[string]Credentials{}
	data, err := os.ReadFile(f.Path)
	if os.IsNotExist(err) {
		return all, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return all, nil
	}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, newClientError("corrupt credential store", err.Error())
	}
	return all, nil
}
