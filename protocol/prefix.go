package protocol

import (
	"fmt"
	"strings"
)

// Language is a script language. Its value is the single byte the ledger
// prefixes to script bytes before hashing them into a script hash.
type Language uint8

const (
	LanguageNative   Language = 0x00
	LanguagePlutusV1 Language = 0x01
	LanguagePlutusV2 Language = 0x02
	LanguagePlutusV3 Language = 0x03
)

func (l Language) Valid() bool { return l <= LanguagePlutusV3 }

func (l Language) IsPlutus() bool { return l >= LanguagePlutusV1 && l <= LanguagePlutusV3 }

func (l Language) String() string {
	switch l {
	case LanguageNative:
		return "Native"
	case LanguagePlutusV1:
		return "PlutusV1"
	case LanguagePlutusV2:
		return "PlutusV2"
	case LanguagePlutusV3:
		return "PlutusV3"
	default:
		return fmt.Sprintf("Language(%d)", uint8(l))
	}
}

// hashPrefix is the domain tag for script hashing:
//
//	tag(language) || script bytes
func (l Language) hashPrefix() []byte {
	return []byte{byte(l)}
}

// ParseLanguage accepts the blueprint spelling ("v3") and the ledger one
// ("PlutusV3").
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "v1", "plutusv1":
		return LanguagePlutusV1, nil
	case "v2", "plutusv2":
		return LanguagePlutusV2, nil
	case "v3", "plutusv3":
		return LanguagePlutusV3, nil
	case "native":
		return LanguageNative, nil
	default:
		return 0, fmt.Errorf("unknown script language %q", s)
	}
}
