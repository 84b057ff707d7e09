package symbols

// Universe is a predefined list of symbols to scan
type Universe string

const (
	UniverseNasdaq100 Universe = "nasdaq100"
	UniverseTest      Universe = "test"
)

// GetUniverse returns the symbols of u, or nil for an unknown name
func GetUniverse(u Universe) []string {
	switch u {
	case UniverseNasdaq100:
		return Nasdaq100Symbols
	case UniverseTest:
		return TestSymbols
	default:
		return nil
	}
}

// TestSymbols liquid large caps for quick runs
var TestSymbols = []string{
	"AAPL", "MSFT", "NVDA", "AMD", "TSLA",
	"META", "AMZN", "GOOGL", "NFLX", "PLTR",
}

// Nasdaq100Symbols NASDAQ-100 components (2024)
var Nasdaq100Symbols = []string{
	"AAPL", "ABNB", "ADBE", "ADI", "ADP", "ADSK", "AEP", "AMAT", "AMD", "AMGN",
	"AMZN", "ANSS", "ARM", "ASML", "AVGO", "AZN", "BIIB", "BKNG", "BKR", "CCEP",
	"CDNS", "CDW", "CEG", "CHTR", "CMCSA", "COST", "CPRT", "CRWD", "CSCO", "CSGP",
	"CSX", "CTAS", "CTSH", "DDOG", "DLTR", "DXCM", "EA", "EXC", "FANG", "FAST",
	"FTNT", "GEHC", "GFS", "GILD", "GOOG", "GOOGL", "HON", "IDXX", "ILMN", "INTC",
	"INTU", "ISRG", "KDP", "KHC", "KLAC", "LIN", "LRCX", "LULU", "MAR", "MCHP",
	"MDB", "MDLZ", "MELI", "META", "MNST", "MRNA", "MRVL", "MSFT", "MU", "NFLX",
	"NVDA", "NXPI", "ODFL", "ON", "ORLY", "PANW", "PAYX", "PCAR", "PDD", "PEP",
	"PYPL", "QCOM", "REGN", "ROP", "ROST", "SBUX", "SMCI", "SNPS", "TEAM", "TMUS",
	"TSLA", "TTD", "TTWO", "TXN", "VRSK", "VRTX", "WBD", "WDAY", "XEL", "ZS",
}
