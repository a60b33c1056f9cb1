package llm

import "go.uber.org/zap/zapcore"

const redacted = "[REDACTED]"

// Opener decrypts sealed credentials.
type Opener interface {
	Open(sealed string) (string, error)
}

// Credential is an API key that is either sealed at rest or supplied in plaintext by
// the process environment. It prints as [REDACTED] and is only revealed at dispatch.
type Credential struct {
	value  string
	sealed bool
}

// SealedCredential wraps a value produced by secrets.Box.Seal.
func SealedCredential(ciphertext string) Credential {
	return Credential{value: ciphertext, sealed: true}
}

// PlainCredential wraps a plaintext key, such as one read from the environment.
func PlainCredential(key string) Credential {
	return Credential{value: key}
}

// IsZero reports whether no credential is present.
func (c Credential) IsZero() bool {
	return c.value == ""
}

// Sealed reports whether the credential needs an Opener.
func (c Credential) Sealed() bool {
	return c.sealed
}

func (c Credential) String() string {
	if c.IsZero() {
		return ""
	}
	return redacted
}

// GoString keeps %#v from printing the key.
func (c Credential) GoString() string {
	return "llm.Credential{" + c.String() + "}"
}

// MarshalJSON never emits the key.
func (c Credential) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

// MarshalLogObject never emits the key.
func (c Credential) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddBool("present", !c.IsZero())
	enc.AddBool("sealed", c.sealed)
	return nil
}

func (c Credential) reveal(opener Opener) (string, error) {
	if !c.sealed {
		return c.value, nil
	}
	if opener == nil {
		return "", &Error{Kind: KindConfiguration, Message: "credential is sealed but no key is configured to open it"}
	}
	key, err := opener.Open(c.value)
	if err != nil {
		return "", &Error{Kind: KindConfiguration, Message: "stored credential could not be decrypted", Cause: err}
	}
	return key, nil
}
