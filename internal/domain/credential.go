package domain

// CredentialKind различает ключи пользователя и общие ключи бота.
type CredentialKind string

const (
	// CredentialUserOwned: ключ, добавленный самим пользователем.
	CredentialUserOwned CredentialKind = "user"
	// CredentialSharedDefault: системный ключ, доступный всем пользователям.
	CredentialSharedDefault CredentialKind = "shared"
)

// Credential описывает ключ, по которому выгружается каталог продавца.
type Credential struct {
	Kind   CredentialKind
	KeyID  int64
	Label  string
	Secret string
}

// NewUserCredential создаёт ключ пользователя.
func NewUserCredential(keyID int64, label, secret string) Credential {
	return Credential{Kind: CredentialUserOwned, KeyID: keyID, Label: label, Secret: secret}
}

// NewSharedCredential создаёт общий ключ.
func NewSharedCredential(label, secret string) Credential {
	return Credential{Kind: CredentialSharedDefault, Label: label, Secret: secret}
}

// IsShared сообщает, что ключ общий и его название не показывается пользователю.
func (c Credential) IsShared() bool {
	return c.Kind == CredentialSharedDefault
}
