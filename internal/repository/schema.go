// Package repository implements the columnar store of §4.7: schema,
// idempotent upserts, range queries, and data-quality persistence. Gorm over
// an embedded SQLite engine (or operator-selected postgres/mysql) stands in
// for a genuine columnar engine — no Go-native columnar driver exists in the
// retrieved pack (SPEC_FULL.md §B).
package repository

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetInfo backs the asset_info table. PK: (symbol, market).
type AssetInfo struct {
	Symbol   string `gorm:"column:symbol;primaryKey"`
	Market   string `gorm:"column:market;primaryKey"`
	Name     string `gorm:"column:name"`
	Kind     string `gorm:"column:kind"`
	Currency string `gorm:"column:currency"`
	Exchange string `gorm:"column:exchange"`
	Sector   string `gorm:"column:sector"`
	Industry string `gorm:"column:industry"`
	Metadata string `gorm:"column:metadata"` // JSON-encoded map[string]string
}

func (AssetInfo) TableName() string { return "asset_info" }

// DailyOHLCV backs daily_ohlcv. It and IntradayOHLCV share one column shape
// and differ only by table name and (for intraday) the extra timeframe
// column, per §4.7's primary-key tables.
type DailyOHLCV struct {
	Symbol    string          `gorm:"column:symbol;primaryKey"`
	Market    string          `gorm:"column:market;primaryKey"`
	TradeDate time.Time       `gorm:"column:trade_date;primaryKey;index:idx_daily_symbol_date,priority:2;index:idx_daily_market_date,priority:2"`
	Open      decimal.Decimal `gorm:"column:open;type:decimal(18,6)"`
	High      decimal.Decimal `gorm:"column:high;type:decimal(18,6)"`
	Low       decimal.Decimal `gorm:"column:low;type:decimal(18,6)"`
	Close     decimal.Decimal `gorm:"column:close;type:decimal(18,6)"`
	Volume    decimal.Decimal `gorm:"column:volume;type:decimal(20,2)"`
	Provider  string          `gorm:"column:provider"`
}

func (DailyOHLCV) TableName() string { return "daily_ohlcv" }

type IntradayOHLCV struct {
	Symbol    string          `gorm:"column:symbol;primaryKey;index:idx_intraday_symbol_tf_ts,priority:1"`
	Market    string          `gorm:"column:market;primaryKey"`
	Timeframe string          `gorm:"column:timeframe;primaryKey;index:idx_intraday_symbol_tf_ts,priority:2"`
	Timestamp time.Time       `gorm:"column:timestamp;primaryKey;index:idx_intraday_symbol_tf_ts,priority:3"`
	Open      decimal.Decimal `gorm:"column:open;type:decimal(18,6)"`
	High      decimal.Decimal `gorm:"column:high;type:decimal(18,6)"`
	Low       decimal.Decimal `gorm:"column:low;type:decimal(18,6)"`
	Close     decimal.Decimal `gorm:"column:close;type:decimal(18,6)"`
	Volume    decimal.Decimal `gorm:"column:volume;type:decimal(20,2)"`
	Provider  string          `gorm:"column:provider"`
}

func (IntradayOHLCV) TableName() string { return "intraday_ohlcv" }

// RealtimeQuote backs real_time_quotes. PK: (symbol, market).
type RealtimeQuote struct {
	Symbol    string          `gorm:"column:symbol;primaryKey"`
	Market    string          `gorm:"column:market;primaryKey"`
	Price     decimal.Decimal `gorm:"column:price;type:decimal(18,6)"`
	Volume    decimal.Decimal `gorm:"column:volume;type:decimal(20,2)"`
	Timestamp time.Time       `gorm:"column:timestamp"`
	Provider  string          `gorm:"column:provider"`
}

func (RealtimeQuote) TableName() string { return "real_time_quotes" }

// DataQuality backs data_quality. PK: (symbol, market, date_range_start, date_range_end).
type DataQuality struct {
	Symbol         string    `gorm:"column:symbol;primaryKey"`
	Market         string    `gorm:"column:market;primaryKey"`
	DateRangeStart time.Time `gorm:"column:date_range_start;primaryKey"`
	DateRangeEnd   time.Time `gorm:"column:date_range_end;primaryKey"`
	Completeness   float64   `gorm:"column:completeness"`
	Accuracy       float64   `gorm:"column:accuracy"`
	Timeliness     float64   `gorm:"column:timeliness"`
	Consistency    float64   `gorm:"column:consistency"`
	Overall        float64   `gorm:"column:overall"`
	Level          string    `gorm:"column:level"`
	IssuesJSON     string    `gorm:"column:issues"`
}

func (DataQuality) TableName() string { return "data_quality" }

// ProviderStatus backs provider_status — operational snapshot of a
// provider's breaker/health state, written by operator tooling, not the
// query data path.
type ProviderStatus struct {
	Provider  string    `gorm:"column:provider;primaryKey"`
	Health    string    `gorm:"column:health"`
	Circuit   string    `gorm:"column:circuit"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (ProviderStatus) TableName() string { return "provider_status" }

// cacheEntryModel mirrors internal/cache/l2's row type so AutoMigrate can
// create the cache_entries table from this package's single bootstrap path.
type cacheEntryModel struct {
	Key     string    `gorm:"column:key;primaryKey"`
	Value   []byte    `gorm:"column:value"`
	Expiry  float64   `gorm:"column:expiry;index"`
	Created time.Time `gorm:"column:created"`
}

func (cacheEntryModel) TableName() string { return "cache_entries" }

// AllModels lists every gorm model for AutoMigrate/migration bootstrap.
func AllModels() []any {
	return []any{
		&AssetInfo{}, &DailyOHLCV{}, &IntradayOHLCV{}, &RealtimeQuote{},
		&cacheEntryModel{}, &DataQuality{}, &ProviderStatus{},
	}
}
