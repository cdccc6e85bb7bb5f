package repository

import (
	"encoding/json"
	"time"

	"github.com/wxxb789/vprism/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Repository is the columnar-store access layer of §4.7.
type Repository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// New wraps an already-open, already-migrated *gorm.DB.
func New(db *gorm.DB, logger *zap.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// DB exposes the underlying *gorm.DB, e.g. for internal/cache/l2.New.
func (r *Repository) DB() *gorm.DB { return r.db }

// SaveAssetInfo upserts one asset row (idempotent on (symbol, market)).
func (r *Repository) SaveAssetInfo(a types.Asset) error {
	meta, _ := json.Marshal(a.Metadata)
	row := AssetInfo{
		Symbol: a.Symbol, Market: a.Market, Name: a.Name, Kind: string(a.Kind),
		Currency: a.Currency, Exchange: a.Exchange, Sector: a.Sector, Industry: a.Industry,
		Metadata: string(meta),
	}
	return r.db.Save(&row).Error
}

// GetAssetInfo selects one asset by (symbol, market).
func (r *Repository) GetAssetInfo(symbol, market string) (types.Asset, bool) {
	var row AssetInfo
	if err := r.db.Where("symbol = ? AND market = ?", symbol, market).First(&row).Error; err != nil {
		return types.Asset{}, false
	}
	var meta map[string]string
	_ = json.Unmarshal([]byte(row.Metadata), &meta)
	return types.Asset{
		Symbol: row.Symbol, Market: row.Market, Name: row.Name, Kind: types.AssetKind(row.Kind),
		Currency: row.Currency, Exchange: row.Exchange, Sector: row.Sector, Industry: row.Industry,
		Metadata: meta,
	}, true
}

// SaveOHLCV routes each point to daily_ohlcv or intraday_ohlcv by
// rec.Timeframe (SPEC_FULL.md §D.a — never by time-of-day inference) and
// upserts idempotently on the table's primary key (I2, P9, R1).
func (r *Repository) SaveOHLCV(records []types.DataRecord) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		for _, rec := range records {
			if rec.Timeframe.IsIntraday() {
				row := IntradayOHLCV{
					Symbol: rec.Symbol, Market: rec.Market, Timeframe: string(rec.Timeframe),
					Timestamp: rec.Timestamp, Open: rec.Open, High: rec.High, Low: rec.Low,
					Close: rec.Close, Volume: rec.Volume, Provider: rec.Provider,
				}
				if err := tx.Save(&row).Error; err != nil {
					return err
				}
				continue
			}
			row := DailyOHLCV{
				Symbol: rec.Symbol, Market: rec.Market, TradeDate: rec.Timestamp,
				Open: rec.Open, High: rec.High, Low: rec.Low, Close: rec.Close,
				Volume: rec.Volume, Provider: rec.Provider,
			}
			if err := tx.Save(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetOHLCV range-scans ascending by time, choosing the table by timeframe.
func (r *Repository) GetOHLCV(symbol, market string, start, end time.Time, tf types.Timeframe) ([]types.DataRecord, error) {
	var out []types.DataRecord

	if tf.IsIntraday() {
		var rows []IntradayOHLCV
		err := r.db.Where("symbol = ? AND market = ? AND timeframe = ? AND timestamp BETWEEN ? AND ?",
			symbol, market, string(tf), start, end).Order("timestamp ASC").Find(&rows).Error
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			out = append(out, types.DataRecord{
				Symbol: row.Symbol, Market: row.Market, Timestamp: row.Timestamp,
				Open: row.Open, High: row.High, Low: row.Low, Close: row.Close,
				Volume: row.Volume, Timeframe: tf, Provider: row.Provider,
			})
		}
		return out, nil
	}

	var rows []DailyOHLCV
	err := r.db.Where("symbol = ? AND market = ? AND trade_date BETWEEN ? AND ?",
		symbol, market, start, end).Order("trade_date ASC").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out = append(out, types.DataRecord{
			Symbol: row.Symbol, Market: row.Market, Timestamp: row.TradeDate,
			Open: row.Open, High: row.High, Low: row.Low, Close: row.Close,
			Volume: row.Volume, Timeframe: types.TimeframeDaily, Provider: row.Provider,
		})
	}
	return out, nil
}

// SaveRealtimeQuotePoint upserts one realtime quote (idempotent on (symbol, market)).
func (r *Repository) SaveRealtimeQuotePoint(symbol, market string, p types.DataPoint) error {
	row := RealtimeQuote{
		Symbol: symbol, Market: market, Price: p.Close, Volume: p.Volume,
		Timestamp: p.Timestamp, Provider: p.Provider,
	}
	return r.db.Save(&row).Error
}

// GetRealtimeQuote selects the current realtime quote for (symbol, market).
func (r *Repository) GetRealtimeQuote(symbol, market string) (RealtimeQuote, bool) {
	var row RealtimeQuote
	if err := r.db.Where("symbol = ? AND market = ?", symbol, market).First(&row).Error; err != nil {
		return RealtimeQuote{}, false
	}
	return row, true
}

// SaveQuality upserts a data_quality row keyed (symbol, market, start, end).
func (r *Repository) SaveQuality(symbol, market string, start, end time.Time, q types.QualityScore) error {
	issues, _ := json.Marshal(q.Issues)
	row := DataQuality{
		Symbol: symbol, Market: market, DateRangeStart: start, DateRangeEnd: end,
		Completeness: q.Completeness, Accuracy: q.Accuracy, Timeliness: q.Timeliness,
		Consistency: q.Consistency, Overall: q.Overall, Level: string(q.Level),
		IssuesJSON: string(issues),
	}
	return r.db.Save(&row).Error
}

// GetQuality selects the data_quality row for the given key, if present.
func (r *Repository) GetQuality(symbol, market string, start, end time.Time) (types.QualityScore, bool) {
	var row DataQuality
	err := r.db.Where("symbol = ? AND market = ? AND date_range_start = ? AND date_range_end = ?",
		symbol, market, start, end).First(&row).Error
	if err != nil {
		return types.QualityScore{}, false
	}
	var issues []types.ValidationIssue
	_ = json.Unmarshal([]byte(row.IssuesJSON), &issues)
	return types.QualityScore{
		Completeness: row.Completeness, Accuracy: row.Accuracy, Timeliness: row.Timeliness,
		Consistency: row.Consistency, Overall: row.Overall, Level: types.QualityLevel(row.Level),
		Issues: issues,
	}, true
}

// GetSymbolsByMarket returns distinct active symbols for market.
func (r *Repository) GetSymbolsByMarket(market string) ([]string, error) {
	var symbols []string
	err := r.db.Model(&AssetInfo{}).Where("market = ?", market).Distinct().Pluck("symbol", &symbols).Error
	return symbols, err
}

// GetLatestPrice prefers the realtime quote; falls back to the most recent
// daily close (§4.7, SPEC_FULL.md §C).
func (r *Repository) GetLatestPrice(symbol, market string) (types.DataPoint, bool) {
	if q, ok := r.GetRealtimeQuote(symbol, market); ok {
		return types.DataPoint{Symbol: symbol, Timestamp: q.Timestamp, Close: q.Price, Volume: q.Volume, Provider: q.Provider}, true
	}

	var row DailyOHLCV
	err := r.db.Where("symbol = ? AND market = ?", symbol, market).Order("trade_date DESC").First(&row).Error
	if err != nil {
		return types.DataPoint{}, false
	}
	return types.DataPoint{
		Symbol: row.Symbol, Timestamp: row.TradeDate, Open: row.Open, High: row.High,
		Low: row.Low, Close: row.Close, Volume: row.Volume, Provider: row.Provider,
	}, true
}

// SaveProviderStatus writes an operational snapshot; never called from the
// query data path (§5).
func (r *Repository) SaveProviderStatus(provider, health, circuit string) error {
	row := ProviderStatus{Provider: provider, Health: health, Circuit: circuit, UpdatedAt: time.Now()}
	return r.db.Save(&row).Error
}
