package discovery

import (
	"fmt"
	"sort"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeTXT creates the TXT records for info.
func EncodeTXT(info *ServiceInfo) TXTRecordMap {
	txt := TXTRecordMap{
		TXTKeyVersion: RecordVersion,
		TXTKeyPath:    info.Path,
	}
	if txt[TXTKeyPath] == "" {
		txt[TXTKeyPath] = "/"
	}
	if len(info.Protocols) > 0 {
		txt[TXTKeyProtocol] = strings.Join(info.Protocols, ",")
	}
	if info.TLS {
		txt[TXTKeyTLS] = "1"
	}
	return txt
}

// DecodeTXT parses TXT records into the advertised fields of a Service.
func DecodeTXT(txt TXTRecordMap) (*Service, error) {
	ver, ok := txt[TXTKeyVersion]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyVersion)
	}
	if ver != RecordVersion {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, ver)
	}

	svc := &Service{Path: txt[TXTKeyPath]}
	if svc.Path == "" {
		svc.Path = "/"
	}
	if p := txt[TXTKeyProtocol]; p != "" {
		svc.Protocols = strings.Split(p, ",")
	}
	svc.TLS = txt[TXTKeyTLS] == "1"
	return svc, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value"
// strings, the format mDNS libraries expect.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, found := strings.Cut(s, "=")
		if k == "" {
			continue
		}
		if !found {
			// Key without value (boolean flag)
			v = ""
		}
		txt[k] = v
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return ErrEmptyInstanceName
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
