package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"perpcore/internal/oracle"
	"perpcore/internal/state"
	"perpcore/internal/store"
)

// genesisFile declares the trade tokens, pools and markets the venue
// opens with, plus starting oracle prices for the local fixture feed.
type genesisFile struct {
	TradeTokens []genesisToken  `json:"trade_tokens"`
	Pools       []genesisPool   `json:"pools"`
	Markets     []genesisMarket `json:"markets"`
	Prices      []genesisPrice  `json:"prices"`
}

type genesisToken struct {
	Mint              string `json:"mint"`
	Name              string `json:"name"`
	Decimals          uint8  `json:"decimals"`
	OracleKey         string `json:"oracle_key"`
	Discount          int64  `json:"discount"`
	LiquidationFactor int64  `json:"liquidation_factor"`
}

type genesisPool struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	Mint                  string `json:"mint"`
	Stable                bool   `json:"stable"`
	MinimumStakeAmount    int64  `json:"minimum_stake_amount"`
	MinimumUnStakeAmount  int64  `json:"minimum_unstake_amount"`
	StakeFeeRate          int64  `json:"stake_fee_rate"`
	UnStakeFeeRate        int64  `json:"unstake_fee_rate"`
	BorrowingInterestRate int64  `json:"borrowing_interest_rate"`
	PoolLiquidityLimit    int64  `json:"pool_liquidity_limit"`
}

type genesisMarket struct {
	Symbol                string `json:"symbol"`
	PoolID                string `json:"pool_id"`
	StablePoolID          string `json:"stable_pool_id"`
	BaseMint              string `json:"base_mint"`
	StableMint            string `json:"stable_mint"`
	TickSize              int64  `json:"tick_size"`
	OpenFeeRate           int64  `json:"open_fee_rate"`
	CloseFeeRate          int64  `json:"close_fee_rate"`
	MaximumLeverage       int64  `json:"maximum_leverage"`
	MinimumLeverage       int64  `json:"minimum_leverage"`
	MaintenanceMarginRate int64  `json:"maintenance_margin_rate"`
	FundingFeeBaseRate    int64  `json:"funding_fee_base_rate"`
	MaxFundingBaseRate    int64  `json:"max_funding_base_rate"`
	MaxPoolLiquidityShare int64  `json:"max_pool_liquidity_share"`
}

type genesisPrice struct {
	FeedKey string `json:"feed_key"`
	Price   int64  `json:"price"`
}

// loadGenesis seeds the store and the fixture oracle from path.
func loadGenesis(path string, st *store.MemoryStore, po *oracle.FixtureOracle, now int64) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read genesis: %w", err)
	}
	var g genesisFile
	if err := json.Unmarshal(data, &g); err != nil {
		return fmt.Errorf("parse genesis: %w", err)
	}

	for _, t := range g.TradeTokens {
		st.AddTradeToken(&state.TradeToken{
			Mint:              t.Mint,
			Name:              t.Name,
			Decimals:          t.Decimals,
			OracleKey:         t.OracleKey,
			Discount:          t.Discount,
			LiquidationFactor: t.LiquidationFactor,
		})
	}
	for _, p := range g.Pools {
		st.AddPool(&state.Pool{
			ID:      p.ID,
			Name:    p.Name,
			MintKey: p.Mint,
			Stable:  p.Stable,
			Config: state.PoolConfig{
				MinimumStakeAmount:    p.MinimumStakeAmount,
				MinimumUnStakeAmount:  p.MinimumUnStakeAmount,
				StakeFeeRate:          p.StakeFeeRate,
				UnStakeFeeRate:        p.UnStakeFeeRate,
				BorrowingInterestRate: p.BorrowingInterestRate,
				PoolLiquidityLimit:    p.PoolLiquidityLimit,
			},
		})
	}
	for _, m := range g.Markets {
		if _, err := st.Pool(m.PoolID); err != nil {
			return fmt.Errorf("market %s: unknown pool %s", m.Symbol, m.PoolID)
		}
		if _, err := st.Pool(m.StablePoolID); err != nil {
			return fmt.Errorf("market %s: unknown stable pool %s", m.Symbol, m.StablePoolID)
		}
		st.AddMarket(&state.Market{
			Symbol:       m.Symbol,
			PoolID:       m.PoolID,
			StablePoolID: m.StablePoolID,
			BaseMint:     m.BaseMint,
			StableMint:   m.StableMint,
			FundingFee:   state.MarketFundingFee{UpdatedAt: now},
			Config: state.MarketConfig{
				TickSize:              m.TickSize,
				OpenFeeRate:           m.OpenFeeRate,
				CloseFeeRate:          m.CloseFeeRate,
				MaximumLeverage:       m.MaximumLeverage,
				MinimumLeverage:       m.MinimumLeverage,
				MaintenanceMarginRate: m.MaintenanceMarginRate,
				FundingFeeBaseRate:    m.FundingFeeBaseRate,
				MaxFundingBaseRate:    m.MaxFundingBaseRate,
				MaxPoolLiquidityShare: m.MaxPoolLiquidityShare,
			},
		})
	}
	for _, p := range g.Prices {
		po.SetPrice(p.FeedKey, p.Price, time.Now().Unix())
	}
	return nil
}
