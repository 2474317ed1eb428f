package contactless

import (
	"fmt"

	"github.com/gregLibert/nfc-reader/pkg/iso7816"
)

// KeyConfig selects the key used to authenticate blocks. The key itself lives in the
// reader: Slot names it, Type says whether it is key A or key B of the sector.
// When Key is set it is loaded into Slot once per card transaction.
type KeyConfig struct {
	Type byte
	Slot byte
	Key  []byte
}

// DefaultKeyConfig is key B from reader slot 0.
func DefaultKeyConfig() KeyConfig {
	return KeyConfig{Type: iso7816.KeyTypeB, Slot: 0x00}
}

// Validate checks the key type and the optional key length.
func (k KeyConfig) Validate() error {
	if k.Type != iso7816.KeyTypeA && k.Type != iso7816.KeyTypeB {
		return fmt.Errorf("%w: key type 0x%02X", ErrInvalidParameter, k.Type)
	}
	if len(k.Key) != 0 && len(k.Key) != iso7816.KeyLength {
		return fmt.Errorf("%w: key length %d, want %d", ErrInvalidParameter, len(k.Key), iso7816.KeyLength)
	}
	return nil
}

// Authenticator issues GENERAL AUTHENTICATE for single blocks. It keeps no
// authentication state: every call sends a fresh command.
type Authenticator struct {
	client *iso7816.Client
	class  iso7816.Class
	keys   KeyConfig
	loaded bool
}

// NewAuthenticator authenticates through client with the given reader class byte.
func NewAuthenticator(client *iso7816.Client, class byte, keys KeyConfig) *Authenticator {
	return &Authenticator{
		client: client,
		class:  iso7816.NewClass(class),
		keys:   keys,
	}
}

// Authenticate grants access to block. Any status word other than 9000, or a
// malformed answer, is ErrAuthenticationFailed. There is no retry.
func (a *Authenticator) Authenticate(block uint16) error {
	if err := a.loadKey(); err != nil {
		return err
	}

	resp, err := a.client.Send(iso7816.GeneralAuthenticate(a.class, block, a.keys.Type, a.keys.Slot))
	return exchangeError(opAuthenticate, block, resp, err, ErrAuthenticationFailed)
}

func (a *Authenticator) loadKey() error {
	if a.loaded || len(a.keys.Key) == 0 {
		return nil
	}

	cmd, err := iso7816.LoadKeys(a.class, a.keys.Slot, a.keys.Key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	resp, err := a.client.Send(cmd)
	if err := exchangeError(opLoadKey, uint16(a.keys.Slot), resp, err, ErrAuthenticationFailed); err != nil {
		return err
	}
	a.loaded = true
	return nil
}
