package bluetooth

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ApplicationConfig is a declarative description of an Application whose
// attributes are backed by static or writable values.
//
//	services:
//	  - uuid: 180d
//	    primary: true
//	    characteristics:
//	      - name: measurement
//	        uuid: 2a37
//	        flags: [read, notify]
//	        hex: "0048"
//	        descriptors:
//	          - uuid: 2901
//	            flags: [read]
//	            value: Heart Rate Measurement
type ApplicationConfig struct {
	Services []ServiceConfig `yaml:"services"`
}

type ServiceConfig struct {
	UUID            string                 `yaml:"uuid"`
	Primary         bool                   `yaml:"primary"`
	Handle          uint16                 `yaml:"handle"`
	Characteristics []CharacteristicConfig `yaml:"characteristics"`
}

type CharacteristicConfig struct {
	// Name makes the value of the characteristic available by name in
	// ConfiguredApplication.Values.
	Name        string             `yaml:"name"`
	UUID        string             `yaml:"uuid"`
	Handle      uint16             `yaml:"handle"`
	Flags       []string           `yaml:"flags"`
	Value       string             `yaml:"value"`
	Hex         string             `yaml:"hex"`
	Descriptors []DescriptorConfig `yaml:"descriptors"`
}

type DescriptorConfig struct {
	Name   string   `yaml:"name"`
	UUID   string   `yaml:"uuid"`
	Handle uint16   `yaml:"handle"`
	Flags  []string `yaml:"flags"`
	Value  string   `yaml:"value"`
	Hex    string   `yaml:"hex"`
}

// ConfiguredApplication is the result of ApplicationConfig.Build.
type ConfiguredApplication struct {
	Application Application
	// Values holds the values of named attributes.
	Values map[string]*Value
}

// LoadApplicationConfig decodes a YAML application description. Unknown keys
// are rejected.
func LoadApplicationConfig(r io.Reader) (*ApplicationConfig, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var cfg ApplicationConfig
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("bluetooth: could not decode application config: %w", err)
	}
	return &cfg, nil
}

// Build creates the Application described by the configuration.
func (c *ApplicationConfig) Build() (*ConfiguredApplication, error) {
	configured := &ConfiguredApplication{Values: make(map[string]*Value)}
	for i, sc := range c.Services {
		uuid, err := parseConfigUUID(sc.UUID)
		if err != nil {
			return nil, fmt.Errorf("service %d: %w", i, err)
		}
		service := Service{UUID: uuid, Handle: sc.Handle, Primary: sc.Primary}
		for j, cc := range sc.Characteristics {
			char, err := configured.characteristic(cc)
			if err != nil {
				return nil, fmt.Errorf("service %d: characteristic %d: %w", i, j, err)
			}
			service.Characteristics = append(service.Characteristics, char)
		}
		configured.Application.Services = append(configured.Application.Services, service)
	}
	return configured, nil
}

func (a *ConfiguredApplication) value(name, text, hexText string) (*Value, error) {
	data := []byte(text)
	if hexText != "" {
		if text != "" {
			return nil, fmt.Errorf("both value and hex given")
		}
		var err error
		if data, err = hex.DecodeString(hexText); err != nil {
			return nil, fmt.Errorf("invalid hex value: %w", err)
		}
	}
	if len(data) > MaxValueLength {
		return nil, RejectInvalidValueLength
	}
	v := NewValue(data)
	if name != "" {
		if _, ok := a.Values[name]; ok {
			return nil, fmt.Errorf("duplicate name %q", name)
		}
		a.Values[name] = v
	}
	return v, nil
}

func (a *ConfiguredApplication) characteristic(cc CharacteristicConfig) (Characteristic, error) {
	uuid, err := parseConfigUUID(cc.UUID)
	if err != nil {
		return Characteristic{}, err
	}
	v, err := a.value(cc.Name, cc.Value, cc.Hex)
	if err != nil {
		return Characteristic{}, err
	}
	char := Characteristic{UUID: uuid, Handle: cc.Handle}
	read := &CharacteristicRead{Func: v.ReadFunc()}
	write := &CharacteristicWrite{Method: v.WriteFunc()}
	notify := &CharacteristicNotify{Method: v.NotifyFunc()}
	var readable, writable, notifiable bool
	for _, flag := range cc.Flags {
		switch flag {
		case "broadcast":
			char.Broadcast = true
		case "read":
			read.Read, readable = true, true
		case "encrypt-read":
			read.EncryptRead, readable = true, true
		case "encrypt-authenticated-read":
			read.EncryptAuthenticatedRead, readable = true, true
		case "secure-read":
			read.SecureRead, readable = true, true
		case "write":
			write.Write, writable = true, true
		case "write-without-response":
			write.WriteWithoutResponse, writable = true, true
		case "reliable-write":
			write.ReliableWrite, writable = true, true
		case "authenticated-signed-writes":
			write.AuthenticatedSignedWrites, writable = true, true
		case "encrypt-write":
			write.EncryptWrite, writable = true, true
		case "encrypt-authenticated-write":
			write.EncryptAuthenticatedWrite, writable = true, true
		case "secure-write":
			write.SecureWrite, writable = true, true
		case "notify":
			notify.Notify, notifiable = true, true
		case "indicate":
			notify.Indicate, notifiable = true, true
		case "writable-auxiliaries":
			char.WritableAuxiliaries = true
		case "authorize":
			char.Authorize = true
		default:
			return Characteristic{}, fmt.Errorf("unknown characteristic flag %q", flag)
		}
	}
	if readable {
		char.Read = read
	}
	if writable {
		char.Write = write
	}
	if notifiable {
		char.Notify = notify
	}
	for k, dc := range cc.Descriptors {
		desc, err := a.descriptor(dc)
		if err != nil {
			return Characteristic{}, fmt.Errorf("descriptor %d: %w", k, err)
		}
		char.Descriptors = append(char.Descriptors, desc)
	}
	return char, nil
}

func (a *ConfiguredApplication) descriptor(dc DescriptorConfig) (Descriptor, error) {
	uuid, err := parseConfigUUID(dc.UUID)
	if err != nil {
		return Descriptor{}, err
	}
	v, err := a.value(dc.Name, dc.Value, dc.Hex)
	if err != nil {
		return Descriptor{}, err
	}
	desc := Descriptor{UUID: uuid, Handle: dc.Handle}
	read := &DescriptorRead{Func: v.ReadFunc()}
	write := &DescriptorWrite{Func: v.WriteFunc()}
	var readable, writable bool
	for _, flag := range dc.Flags {
		switch flag {
		case "read":
			read.Read, readable = true, true
		case "encrypt-read":
			read.EncryptRead, readable = true, true
		case "encrypt-authenticated-read":
			read.EncryptAuthenticatedRead, readable = true, true
		case "secure-read":
			read.SecureRead, readable = true, true
		case "write":
			write.Write, writable = true, true
		case "encrypt-write":
			write.EncryptWrite, writable = true, true
		case "encrypt-authenticated-write":
			write.EncryptAuthenticatedWrite, writable = true, true
		case "secure-write":
			write.SecureWrite, writable = true, true
		case "authorize":
			desc.Authorize = true
		default:
			return Descriptor{}, fmt.Errorf("unknown descriptor flag %q", flag)
		}
	}
	if readable {
		desc.Read = read
	}
	if writable {
		desc.Write = write
	}
	return desc, nil
}

// parseConfigUUID accepts 16-bit and 32-bit UUIDs as 4 or 8 hex digits, and
// full UUIDs.
func parseConfigUUID(s string) (UUID, error) {
	switch len(s) {
	case 4, 8:
		n, err := strconv.ParseUint(s, 16, 32)
		if err != nil {
			return UUID{}, errInvalidUUID
		}
		u := New16BitUUID(0)
		u[3] = uint32(n)
		return u, nil
	default:
		return ParseUUID(s)
	}
}
