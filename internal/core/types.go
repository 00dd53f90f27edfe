// internal/core/types.go
package core

import "strings"

// CameraDescriptor é a câmera como listada pelo gateway na descoberta da frota.
type CameraDescriptor struct {
	ID           string       `json:"device_id"`
	Name         string       `json:"device_name"`
	Capabilities Capabilities `json:"capabilities"`
}

// Capabilities descreve os streams que o dispositivo expõe.
type Capabilities struct {
	// FixedStream: dispositivo com stream único (vst=1 no bridge)
	FixedStream bool `json:"fixed_stream"`

	// Tiers é o JSON cru com os tiers numerados ("0".."3") reportados pelo
	// dispositivo. Fica cru de propósito: o seletor decide o que fazer se vier inválido.
	Tiers string `json:"tiers,omitempty"`

	// Bitrate legado; -1 = não informado
	Bitrate int `json:"bitrate"`
}

// Quality é a preferência de qualidade configurada.
type Quality string

const (
	QualityAuto Quality = "AUTO"
	QualityHD   Quality = "HD"
	QualitySD   Quality = "SD"
	QualityLow  Quality = "LOW"
)

// ParseQuality aceita AUTO|HD|SD|LOW (case-insensitive). Qualquer outra coisa vira HD.
func ParseQuality(s string) Quality {
	switch Quality(strings.ToUpper(strings.TrimSpace(s))) {
	case QualityAuto:
		return QualityAuto
	case QualitySD:
		return QualitySD
	case QualityLow:
		return QualityLow
	default:
		return QualityHD
	}
}

// Valid informa se q é um dos valores conhecidos.
func (q Quality) Valid() bool {
	switch q {
	case QualityAuto, QualityHD, QualitySD, QualityLow:
		return true
	}
	return false
}
