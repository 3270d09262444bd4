package model

// Credential records how a user can log in. It is a closed sum type:
//
//	PasswordCredential  registered with email + password
//	ExternalCredential  created by a Google login, no password
//	LinkedCredential    password account later linked to a Google identity
//
// Code that needs to branch on the login origin type-switches on the
// variant instead of inspecting nullable columns.
type Credential interface {
	credential()
}

type PasswordCredential struct {
	Hash string
}

type ExternalCredential struct {
	ProviderID string
}

type LinkedCredential struct {
	Hash       string
	ProviderID string
}

func (PasswordCredential) credential() {}
func (ExternalCredential) credential() {}
func (LinkedCredential) credential()   {}

// CredentialFrom builds the variant matching the stored columns. It returns
// nil when both are empty, which the schema never produces for real users.
func CredentialFrom(hash, providerID string) Credential {
	switch {
	case hash != "" && providerID != "":
		return LinkedCredential{Hash: hash, ProviderID: providerID}
	case hash != "":
		return PasswordCredential{Hash: hash}
	case providerID != "":
		return ExternalCredential{ProviderID: providerID}
	default:
		return nil
	}
}

// PasswordHash returns the bcrypt hash if the credential carries one.
func PasswordHash(c Credential) (string, bool) {
	switch v := c.(type) {
	case PasswordCredential:
		return v.Hash, true
	case LinkedCredential:
		return v.Hash, true
	default:
		return "", false
	}
}

// ExternalID returns the provider id if the credential carries one.
func ExternalID(c Credential) (string, bool) {
	switch v := c.(type) {
	case ExternalCredential:
		return v.ProviderID, true
	case LinkedCredential:
		return v.ProviderID, true
	default:
		return "", false
	}
}
