package sentiment

// defaultLexicon holds word polarities in [-1, 1].
var defaultLexicon = map[string]float64{
	"agree":           0.3,
	"amazing":         0.8,
	"awesome":         0.8,
	"beautiful":       0.85,
	"best":            1.0,
	"brilliant":       0.9,
	"congrats":        0.7,
	"congratulations": 0.7,
	"cool":            0.35,
	"enjoy":           0.4,
	"enjoyed":         0.5,
	"excellent":       1.0,
	"exciting":        0.6,
	"fantastic":       0.8,
	"glad":            0.5,
	"good":            0.7,
	"great":           0.8,
	"happy":           0.8,
	"helpful":         0.5,
	"impressive":      0.8,
	"incredible":      0.9,
	"informative":     0.5,
	"insightful":      0.6,
	"inspiring":       0.6,
	"interesting":     0.5,
	"love":            0.5,
	"loved":           0.7,
	"nice":            0.6,
	"outstanding":     0.9,
	"perfect":         1.0,
	"smart":           0.5,
	"superb":          1.0,
	"thoughtful":      0.5,
	"useful":          0.3,
	"valuable":        0.6,
	"wonderful":       1.0,

	"angry":         -0.5,
	"annoying":      -0.8,
	"awful":         -1.0,
	"bad":           -0.7,
	"boring":        -1.0,
	"broken":        -0.4,
	"confusing":     -0.3,
	"disagree":      -0.3,
	"disappointed":  -0.75,
	"disappointing": -0.6,
	"fake":          -0.5,
	"garbage":       -0.8,
	"hate":          -0.8,
	"hated":         -0.9,
	"horrible":      -1.0,
	"lazy":          -0.25,
	"mediocre":      -0.4,
	"meh":           -0.3,
	"misleading":    -0.6,
	"nonsense":      -0.6,
	"outdated":      -0.4,
	"pointless":     -0.5,
	"poor":          -0.4,
	"ridiculous":    -0.33,
	"sad":           -0.5,
	"spam":          -0.6,
	"stupid":        -0.8,
	"terrible":      -1.0,
	"ugly":          -0.7,
	"useless":       -0.5,
	"waste":         -0.2,
	"worst":         -1.0,
	"wrong":         -0.5,
}

var negators = map[string]bool{
	"not":       true,
	"no":        true,
	"never":     true,
	"neither":   true,
	"nor":       true,
	"nothing":   true,
	"hardly":    true,
	"barely":    true,
	"isn't":     true,
	"wasn't":    true,
	"aren't":    true,
	"don't":     true,
	"doesn't":   true,
	"didn't":    true,
	"can't":     true,
	"cannot":    true,
	"won't":     true,
	"couldn't":  true,
	"wouldn't":  true,
	"shouldn't": true,
}

var intensifiers = map[string]bool{
	"absolutely": true,
	"extremely":  true,
	"highly":     true,
	"incredibly": true,
	"really":     true,
	"so":         true,
	"super":      true,
	"totally":    true,
	"truly":      true,
	"very":       true,
}

const (
	negationFactor    = -0.5
	intensifierFactor = 1.3

	// modifierReach is how many tokens a negator or intensifier may precede
	// the word it modifies.
	modifierReach = 3
)
