package models

// bcrypt ignores everything past 72 bytes.
const maxPasswordBytes = 72

// Credentials is the username/password pair used to register and log in.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate checks the shape of the credentials, not their correctness.
func (c Credentials) Validate() error {
	if err := validateText("username", c.Username); err != nil {
		return err
	}
	if c.Password == "" {
		return &ValidationError{Field: "password", Reason: "must not be empty"}
	}
	if len(c.Password) > maxPasswordBytes {
		return &ValidationError{Field: "password", Reason: "must be at most 72 bytes"}
	}
	return nil
}
