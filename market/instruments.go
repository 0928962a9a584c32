package market

// InstrumentMeta describes exchange constraints for one trading pair.
type InstrumentMeta struct {
	Name        string
	Base        string
	Quote       string
	TickSize    float64 // minimum price increment
	LotStep     float64 // minimum quantity increment
	MinNotional float64 // minimum order value in quote currency
}

var Instruments = map[string]InstrumentMeta{
	"BTC_USDT": {
		Name:        "BTC_USDT",
		Base:        "BTC",
		Quote:       "USDT",
		TickSize:    0.01,
		LotStep:     0.00001,
		MinNotional: 5,
	},
	"ETH_USDT": {
		Name:        "ETH_USDT",
		Base:        "ETH",
		Quote:       "USDT",
		TickSize:    0.01,
		LotStep:     0.0001,
		MinNotional: 5,
	},
	"SOL_USDT": {
		Name:        "SOL_USDT",
		Base:        "SOL",
		Quote:       "USDT",
		TickSize:    0.001,
		LotStep:     0.001,
		MinNotional: 5,
	},
}
