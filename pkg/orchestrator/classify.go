package orchestrator

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tonyzinh/system-hospital-backend/internal/models"
)

const (
	veryShortLimit  = 20
	shortLimit      = 50
	normalLimit     = 200
	longHistoryMark = 5
)

// Phrases that ask for an elaborate answer.
var detailPhrases = []string{
	"explique detalhadamente",
	"análise completa",
	"comparação",
	"diferenças entre",
	"como funciona",
	"processo completo",
	"passo a passo",
	"tutorial",
	"exemplos",
}

// Clinical vocabulary routed to the precise low temperature tier.
var domainKeywords = []string{
	"dose",
	"dosagem",
	"posologia",
	"medicamento",
	"remédio",
	"prescrição",
	"interação",
	"contraindicação",
	"efeito colateral",
	"efeitos colaterais",
	"sintoma",
	"diagnóstico",
	"tratamento",
	"paciente",
	"internação",
	"alergia",
	"antibiótico",
	"analgésico",
}

type query struct {
	text       string
	lower      string
	length     int
	historyLen int
}

type rule struct {
	tier     models.Tier
	matches  func(q query) bool
	settings models.RequestSettings
}

// rules are evaluated in order; the first match wins and the last always
// matches. A long conversation outranks every length based tier.
var rules = []rule{
	{
		tier:    models.TierDetailed,
		matches: func(q query) bool { return q.historyLen > longHistoryMark },
		settings: models.RequestSettings{
			MaxTokens: 2048, Timeout: 120 * time.Second, Temperature: 0.3,
		},
	},
	{
		tier:    models.TierVeryShort,
		matches: func(q query) bool { return q.length < veryShortLimit },
		settings: models.RequestSettings{
			MaxTokens: 256, Timeout: 30 * time.Second, Temperature: 0.1, FastMode: true,
		},
	},
	{
		tier: models.TierDetailed,
		matches: func(q query) bool {
			return q.length > normalLimit || containsAny(q.lower, detailPhrases)
		},
		settings: models.RequestSettings{
			MaxTokens: 2048, Timeout: 120 * time.Second, Temperature: 0.3,
		},
	},
	{
		tier:    models.TierDomain,
		matches: func(q query) bool { return containsAny(q.lower, domainKeywords) },
		settings: models.RequestSettings{
			MaxTokens: 1024, Timeout: 60 * time.Second, Temperature: 0.1,
		},
	},
	{
		tier:    models.TierShort,
		matches: func(q query) bool { return q.length < shortLimit },
		settings: models.RequestSettings{
			MaxTokens: 512, Timeout: 30 * time.Second, Temperature: 0.1, FastMode: true,
		},
	},
	{
		tier:    models.TierDefault,
		matches: func(query) bool { return true },
		settings: models.RequestSettings{
			MaxTokens: 1024, Timeout: 60 * time.Second, Temperature: 0.2,
		},
	},
}

// Classify derives generation settings from the question and the number of
// prior conversation messages. It is a pure function.
func Classify(question string, historyLen int) models.RequestSettings {
	q := query{
		text:       question,
		lower:      strings.ToLower(question),
		length:     utf8.RuneCountInString(question),
		historyLen: historyLen,
	}
	for _, r := range rules {
		if r.matches(q) {
			s := r.settings
			s.Tier = r.tier
			return s
		}
	}
	// unreachable, the default rule always matches
	return models.RequestSettings{}
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
