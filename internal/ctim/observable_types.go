package ctim

// humanReadableTypes maps observable type tokens to the wording used in
// user-facing warning and error messages.
var humanReadableTypes = map[string]string{
	"certificate_common_name": "certificate common name",
	"certificate_issuer":      "certificate issuer",
	"certificate_serial":      "certificate serial",
	"cisco_mid":               "Cisco message ID",
	"cisco_uc_id":             "Cisco UC ID",
	"device":                  "device",
	"domain":                  "domain",
	"email":                   "email",
	"email_messageid":         "email message ID",
	"email_subject":           "email subject",
	"file_name":               "file name",
	"file_path":               "file path",
	"hostname":                "hostname",
	"imei":                    "IMEI",
	"imsi":                    "IMSI",
	"ip":                      "IP",
	"ipv6":                    "IPv6",
	"mac_address":             "MAC address",
	"md5":                     "MD5",
	"ms_machine_id":           "Microsoft machine ID",
	"mutex":                   "mutex",
	"ngfw_id":                 "NGFW ID",
	"ngfw_name":               "NGFW name",
	"odns_identity":           "ODNS identity",
	"odns_identity_label":     "ODNS identity label",
	"orbital_node_id":         "Orbital node ID",
	"pki_serial":              "PKI serial",
	"process_name":            "process name",
	"registry_key":            "registry key",
	"registry_name":           "registry name",
	"registry_path":           "registry path",
	"s1_agent_id":             "SentinelOne agent ID",
	"sha1":                    "SHA1",
	"sha256":                  "SHA256",
	"swc_device_id":           "SWC device ID",
	"url":                     "URL",
	"user":                    "user",
	"user_agent":              "user agent",
}

// HumanReadableType returns the display name for an observable type, falling
// back to the raw token for types the table does not know.
func HumanReadableType(observableType string) string {
	if name, ok := humanReadableTypes[observableType]; ok {
		return name
	}
	return observableType
}
