// Package quality escolhe o stream do dispositivo a partir das capabilities
// e da preferência de qualidade configurada.
package quality

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/sua-org/cam-recorder/internal/core"
)

const (
	// StreamLow é o stream fixo de baixa banda (também usado em câmeras de stream único).
	StreamLow = "0"
	// StreamHigh é o stream fixo de alta banda.
	StreamHigh = "1"

	tierStreamBase = 100
)

// ordem de busca dos tiers por preferência
var tierOrder = map[core.Quality][]int{
	core.QualityHD:   {3, 2, 1, 0},
	core.QualitySD:   {1, 2, 0, 3},
	core.QualityLow:  {0, 1, 2, 3},
	core.QualityAuto: {0, 1, 2, 3},
}

// Select devolve o stream id para o dispositivo. Nunca falha: dados de
// capability inválidos caem em um stream fixo.
func Select(caps core.Capabilities, pref core.Quality) string {
	if caps.FixedStream {
		return StreamLow
	}

	if strings.TrimSpace(caps.Tiers) == "" {
		if caps.Bitrate == 0 || caps.Bitrate == -1 {
			return StreamLow
		}
		return StreamHigh
	}

	var tiers map[string]json.RawMessage
	if err := json.Unmarshal([]byte(caps.Tiers), &tiers); err != nil {
		return StreamHigh
	}

	order, ok := tierOrder[pref]
	if !ok {
		order = tierOrder[core.QualityHD]
	}
	for _, n := range order {
		if _, ok := tiers[strconv.Itoa(n)]; ok {
			return TierStreamID(n)
		}
	}
	return StreamHigh
}

// TierStreamID mapeia o tier n para o stream id "10n".
func TierStreamID(n int) string {
	return strconv.Itoa(tierStreamBase + n)
}
