package model

// ConfigSource says where a resolved configuration came from.
type ConfigSource string

const (
	SourceEnv      ConfigSource = "ENV"
	SourceDatabase ConfigSource = "DATABASE"
)

// CredentialSentinel is the placeholder substituted for a credential that
// could not be decrypted. Listing and report paths render it as-is; anything
// that needs the real secret must treat it as missing and move on.
const CredentialSentinel = "[ENCRYPTED]"

// ResolvedConfig is the value object produced by a credential lookup. The
// APIKey inside Config is plaintext, or CredentialSentinel when decryption
// failed. It is never persisted.
type ResolvedConfig struct {
	ProviderName string         `json:"provider_name"`
	Type         ServiceType    `json:"type"`
	Config       ProviderConfig `json:"config"`
	Capabilities []Operation    `json:"capabilities"`
	Limits       Limits         `json:"limits"`
	Source       ConfigSource   `json:"source"`
}

// Clone returns a deep copy, detaching the Config variant sections and the
// Capabilities slice from the original.
func (r ResolvedConfig) Clone() ResolvedConfig {
	out := r
	out.Config = r.Config.Clone()
	if r.Capabilities != nil {
		out.Capabilities = append([]Operation(nil), r.Capabilities...)
	}
	return out
}

// CredentialUsable reports whether the resolved credential is a real secret
// rather than the masked sentinel.
func (r *ResolvedConfig) CredentialUsable() bool {
	return r.Config.APIKey != "" && r.Config.APIKey != CredentialSentinel
}
