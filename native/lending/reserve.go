package lending

import (
	"fmt"
	"math"

	"tokenlending/crypto"
	"tokenlending/native/lending/decimal"
	"tokenlending/native/lending/errs"
	"tokenlending/native/lending/state"
	"tokenlending/runtime"
	"tokenlending/runtime/token"
)

// initReserve accounts:
//
//  0. [writable] source liquidity
//  1. [writable] destination collateral, allocated and uninitialized
//  2. [writable] reserve, allocated and uninitialized
//  3. [] liquidity mint
//  4. [writable] reserve liquidity supply, allocated and uninitialized
//  5. [writable] reserve liquidity fee receiver, allocated and uninitialized
//  6. [] primary oracle feed
//  7. [] secondary oracle feed
//  8. [writable] reserve collateral mint, allocated and uninitialized
//  9. [writable] reserve collateral supply, allocated and uninitialized
//  10. [] lending market
//  11. [] lending market authority
//  12. [signer] lending market owner
//  13. [signer] user transfer authority
//  14. [] token program
func (p *Program) initReserve(ic *runtime.InvokeContext, accounts []*runtime.AccountInfo, liquidityAmount uint64, config state.ReserveConfig) error {
	if err := requireAccounts(accounts, 15); err != nil {
		return err
	}
	if err := requireAmount(liquidityAmount); err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return err
	}
	var (
		sourceLiquidity       = accounts[0]
		destinationCollateral = accounts[1]
		reserveInfo           = accounts[2]
		liquidityMint         = accounts[3]
		liquiditySupply       = accounts[4]
		feeReceiver           = accounts[5]
		pythOracle            = accounts[6]
		switchboardOracle     = accounts[7]
		collateralMint        = accounts[8]
		collateralSupply      = accounts[9]
		marketInfo            = accounts[10]
		authorityInfo         = accounts[11]
		marketOwner           = accounts[12]
		userAuthority         = accounts[13]
		tokenProgram          = accounts[14]
	)

	if err := p.owned(reserveInfo); err != nil {
		return err
	}
	existing, err := state.UnpackReserve(reserveInfo.Data)
	if err != nil {
		return err
	}
	if existing.IsInitialized() {
		return fmt.Errorf("%w: reserve %s", errs.ErrAlreadyInitialized, reserveInfo.Key)
	}
	market, err := p.loadMarket(marketInfo)
	if err != nil {
		return err
	}
	if err := requireMarketOwner(market, marketOwner); err != nil {
		return err
	}
	if err := requireSigner(userAuthority); err != nil {
		return err
	}
	seeds, err := p.marketAuthority(marketInfo.Key, market, authorityInfo)
	if err != nil {
		return err
	}
	if err := requireTokenProgram(market, tokenProgram); err != nil {
		return err
	}
	if err := requireDistinct(sourceLiquidity, liquiditySupply, "source liquidity cannot be the reserve liquidity supply"); err != nil {
		return err
	}

	if liquidityMint.Owner != market.TokenProgramID {
		return fmt.Errorf("%w: %s", errs.ErrInvalidTokenOwner, liquidityMint.Key)
	}
	mint, err := token.UnpackMint(liquidityMint.Data)
	if err != nil || !mint.IsInitialized {
		return fmt.Errorf("%w: %s", errs.ErrInvalidTokenMint, liquidityMint.Key)
	}

	reader := p.reader(market)
	primary, secondary := p.feed(pythOracle), p.feed(switchboardOracle)
	if primary == nil && secondary == nil {
		return fmt.Errorf("%w: reserve needs at least one oracle", errs.ErrInvalidOracleConfig)
	}
	if primary != nil {
		if err := reader.ValidatePythFeed(*primary); err != nil {
			return err
		}
	}
	if secondary != nil {
		if err := reader.ValidateSwitchboardFeed(*secondary); err != nil {
			return err
		}
	}
	observation, err := reader.Price(primary, secondary, ic.Slot())
	if err != nil {
		return err
	}

	config.FeeReceiver = feeReceiver.Key
	reserve := state.NewReserve(state.NewReserveParams{
		CurrentSlot:   ic.Slot(),
		LendingMarket: marketInfo.Key,
		Liquidity: state.ReserveLiquidity{
			MintPubkey:        liquidityMint.Key,
			MintDecimals:      mint.Decimals,
			SupplyPubkey:      liquiditySupply.Key,
			PythOracle:        pythOracle.Key,
			SwitchboardOracle: switchboardOracle.Key,
			MarketPrice:       observation.Price,
		},
		Collateral: state.ReserveCollateral{
			MintPubkey:   collateralMint.Key,
			SupplyPubkey: collateralSupply.Key,
		},
		Config: config,
	})
	collateralAmount, err := reserve.DepositLiquidity(liquidityAmount)
	if err != nil {
		return err
	}
	if err := pack(reserveInfo, reserve); err != nil {
		return err
	}

	tokens := p.tokens(ic, market.TokenProgramID, seeds)
	if err := tokens.initializeAccount(liquiditySupply.Key, liquidityMint.Key, authorityInfo.Key); err != nil {
		return err
	}
	if err := tokens.initializeAccount(feeReceiver.Key, liquidityMint.Key, marketOwner.Key); err != nil {
		return err
	}
	if err := tokens.initializeMint(collateralMint.Key, authorityInfo.Key, mint.Decimals); err != nil {
		return err
	}
	if err := tokens.initializeAccount(collateralSupply.Key, collateralMint.Key, authorityInfo.Key); err != nil {
		return err
	}
	if err := tokens.initializeAccount(destinationCollateral.Key, collateralMint.Key, userAuthority.Key); err != nil {
		return err
	}
	if err := tokens.transfer(sourceLiquidity.Key, liquiditySupply.Key, userAuthority.Key, liquidityAmount, false); err != nil {
		return err
	}
	return tokens.mintTo(collateralMint.Key, destinationCollateral.Key, authorityInfo.Key, collateralAmount)
}

// refreshReserve accounts:
//
//  0. [writable] reserve
//  1. [] primary oracle feed
//  2. [] secondary oracle feed
func (p *Program) refreshReserve(ic *runtime.InvokeContext, accounts []*runtime.AccountInfo) error {
	if err := requireAccounts(accounts, 3); err != nil {
		return err
	}
	reserveInfo, pythOracle, switchboardOracle := accounts[0], accounts[1], accounts[2]
	reserve, err := p.loadReserve(reserveInfo, crypto.Pubkey{})
	if err != nil {
		return err
	}
	if pythOracle.Key != reserve.Liquidity.PythOracle {
		return fmt.Errorf("%w: primary feed %s does not match reserve", errs.ErrInvalidOracleConfig, pythOracle.Key)
	}
	if switchboardOracle.Key != reserve.Liquidity.SwitchboardOracle {
		return fmt.Errorf("%w: secondary feed %s does not match reserve", errs.ErrInvalidOracleConfig, switchboardOracle.Key)
	}
	observation, err := p.reader(nil).Price(p.feed(pythOracle), p.feed(switchboardOracle), ic.Slot())
	if err != nil {
		return err
	}
	if err := reserve.Refresh(ic.Slot(), observation.Price); err != nil {
		return err
	}
	return pack(reserveInfo, reserve)
}

// refreshReserveInterest accrues interest and stamps the slot without a new
// price. Combined instructions use it between their steps.
func (p *Program) refreshReserveInterest(ic *runtime.InvokeContext, reserveInfo *runtime.AccountInfo) error {
	reserve, err := p.loadReserve(reserveInfo, crypto.Pubkey{})
	if err != nil {
		return err
	}
	if err := reserve.AccrueInterest(ic.Slot()); err != nil {
		return err
	}
	reserve.LastUpdate.UpdateSlot(ic.Slot())
	return pack(reserveInfo, reserve)
}

type depositLiquidityAccounts struct {
	sourceLiquidity       *runtime.AccountInfo
	destinationCollateral *runtime.AccountInfo
	reserve               *runtime.AccountInfo
	liquiditySupply       *runtime.AccountInfo
	collateralMint        *runtime.AccountInfo
	market                *runtime.AccountInfo
	authority             *runtime.AccountInfo
	userAuthority         *runtime.AccountInfo
	tokenProgram          *runtime.AccountInfo
}

// depositReserveLiquidity accounts:
//
//  0. [writable] source liquidity
//  1. [writable] destination collateral
//  2. [writable] reserve
//  3. [writable] reserve liquidity supply
//  4. [writable] reserve collateral mint
//  5. [] lending market
//  6. [] lending market authority
//  7. [signer] user transfer authority
//  8. [] token program
func (p *Program) depositReserveLiquidity(ic *runtime.InvokeContext, accounts []*runtime.AccountInfo, liquidityAmount uint64) (uint64, error) {
	if err := requireAccounts(accounts, 9); err != nil {
		return 0, err
	}
	return p.depositLiquidity(ic, depositLiquidityAccounts{
		sourceLiquidity:       accounts[0],
		destinationCollateral: accounts[1],
		reserve:               accounts[2],
		liquiditySupply:       accounts[3],
		collateralMint:        accounts[4],
		market:                accounts[5],
		authority:             accounts[6],
		userAuthority:         accounts[7],
		tokenProgram:          accounts[8],
	}, liquidityAmount)
}

func (p *Program) depositLiquidity(ic *runtime.InvokeContext, a depositLiquidityAccounts, liquidityAmount uint64) (uint64, error) {
	if err := requireAmount(liquidityAmount); err != nil {
		return 0, err
	}
	market, err := p.loadMarket(a.market)
	if err != nil {
		return 0, err
	}
	reserve, err := p.loadReserve(a.reserve, a.market.Key)
	if err != nil {
		return 0, err
	}
	if err := requireKey(a.liquiditySupply, reserve.Liquidity.SupplyPubkey, "reserve liquidity supply"); err != nil {
		return 0, err
	}
	if err := requireKey(a.collateralMint, reserve.Collateral.MintPubkey, "reserve collateral mint"); err != nil {
		return 0, err
	}
	if a.sourceLiquidity.Key == reserve.Liquidity.SupplyPubkey {
		return 0, fmt.Errorf("%w: source liquidity cannot be the reserve liquidity supply", errs.ErrInvalidAccountInput)
	}
	if a.destinationCollateral.Key == reserve.Collateral.SupplyPubkey {
		return 0, fmt.Errorf("%w: destination collateral cannot be the reserve collateral supply", errs.ErrInvalidAccountInput)
	}
	seeds, err := p.marketAuthority(a.market.Key, market, a.authority)
	if err != nil {
		return 0, err
	}
	if err := requireTokenProgram(market, a.tokenProgram); err != nil {
		return 0, err
	}
	if err := requireSigner(a.userAuthority); err != nil {
		return 0, err
	}
	if err := requireFreshReserve(reserve, a.reserve.Key, ic.Slot()); err != nil {
		return 0, err
	}

	total, err := reserve.Liquidity.TotalSupply()
	if err != nil {
		return 0, err
	}
	if total, err = total.Add(decimal.FromUint64(liquidityAmount)); err != nil {
		return 0, err
	}
	if total.Gt(decimal.FromUint64(reserve.Config.DepositLimit)) {
		return 0, fmt.Errorf("%w: deposit would exceed the reserve deposit limit of %d",
			errs.ErrInvalidAmount, reserve.Config.DepositLimit)
	}

	collateralAmount, err := reserve.DepositLiquidity(liquidityAmount)
	if err != nil {
		return 0, err
	}
	reserve.LastUpdate.MarkStale()
	if err := pack(a.reserve, reserve); err != nil {
		return 0, err
	}

	tokens := p.tokens(ic, market.TokenProgramID, seeds)
	if err := tokens.transfer(a.sourceLiquidity.Key, a.liquiditySupply.Key, a.userAuthority.Key, liquidityAmount, false); err != nil {
		return 0, err
	}
	if err := tokens.mintTo(a.collateralMint.Key, a.destinationCollateral.Key, a.authority.Key, collateralAmount); err != nil {
		return 0, err
	}
	return collateralAmount, nil
}

type redeemCollateralAccounts struct {
	sourceCollateral     *runtime.AccountInfo
	destinationLiquidity *runtime.AccountInfo
	reserve              *runtime.AccountInfo
	collateralMint       *runtime.AccountInfo
	liquiditySupply      *runtime.AccountInfo
	market               *runtime.AccountInfo
	authority            *runtime.AccountInfo
	userAuthority        *runtime.AccountInfo
	tokenProgram         *runtime.AccountInfo
}

// redeemReserveCollateral accounts:
//
//  0. [writable] source collateral
//  1. [writable] destination liquidity
//  2. [writable] reserve
//  3. [writable] reserve collateral mint
//  4. [writable] reserve liquidity supply
//  5. [] lending market
//  6. [] lending market authority
//  7. [signer] user transfer authority
//  8. [] token program
func (p *Program) redeemReserveCollateral(ic *runtime.InvokeContext, accounts []*runtime.AccountInfo, collateralAmount uint64) (uint64, error) {
	if err := requireAccounts(accounts, 9); err != nil {
		return 0, err
	}
	return p.redeemCollateral(ic, redeemCollateralAccounts{
		sourceCollateral:     accounts[0],
		destinationLiquidity: accounts[1],
		reserve:              accounts[2],
		collateralMint:       accounts[3],
		liquiditySupply:      accounts[4],
		market:               accounts[5],
		authority:            accounts[6],
		userAuthority:        accounts[7],
		tokenProgram:         accounts[8],
	}, collateralAmount)
}

// redeemCollateral burns collateralAmount and pays out the liquidity it is
// worth. math.MaxUint64 redeems the whole source balance.
func (p *Program) redeemCollateral(ic *runtime.InvokeContext, a redeemCollateralAccounts, collateralAmount uint64) (uint64, error) {
	if err := requireAmount(collateralAmount); err != nil {
		return 0, err
	}
	market, err := p.loadMarket(a.market)
	if err != nil {
		return 0, err
	}
	reserve, err := p.loadReserve(a.reserve, a.market.Key)
	if err != nil {
		return 0, err
	}
	if err := requireKey(a.collateralMint, reserve.Collateral.MintPubkey, "reserve collateral mint"); err != nil {
		return 0, err
	}
	if err := requireKey(a.liquiditySupply, reserve.Liquidity.SupplyPubkey, "reserve liquidity supply"); err != nil {
		return 0, err
	}
	if a.sourceCollateral.Key == reserve.Collateral.SupplyPubkey {
		return 0, fmt.Errorf("%w: source collateral cannot be the reserve collateral supply", errs.ErrInvalidAccountInput)
	}
	if a.destinationLiquidity.Key == reserve.Liquidity.SupplyPubkey {
		return 0, fmt.Errorf("%w: destination liquidity cannot be the reserve liquidity supply", errs.ErrInvalidAccountInput)
	}
	seeds, err := p.marketAuthority(a.market.Key, market, a.authority)
	if err != nil {
		return 0, err
	}
	if err := requireTokenProgram(market, a.tokenProgram); err != nil {
		return 0, err
	}
	if err := requireSigner(a.userAuthority); err != nil {
		return 0, err
	}
	if err := requireFreshReserve(reserve, a.reserve.Key, ic.Slot()); err != nil {
		return 0, err
	}

	if collateralAmount == math.MaxUint64 {
		source, err := tokenBalance(market, a.sourceCollateral)
		if err != nil {
			return 0, err
		}
		collateralAmount = source.Amount
		if err := requireAmount(collateralAmount); err != nil {
			return 0, err
		}
	}

	liquidityAmount, err := reserve.RedeemCollateral(collateralAmount)
	if err != nil {
		return 0, err
	}
	reserve.LastUpdate.MarkStale()
	if err := pack(a.reserve, reserve); err != nil {
		return 0, err
	}

	tokens := p.tokens(ic, market.TokenProgramID, seeds)
	if err := tokens.burn(a.sourceCollateral.Key, a.collateralMint.Key, a.userAuthority.Key, collateralAmount); err != nil {
		return 0, err
	}
	if err := tokens.transfer(a.liquiditySupply.Key, a.destinationLiquidity.Key, a.authority.Key, liquidityAmount, true); err != nil {
		return 0, err
	}
	return liquidityAmount, nil
}

// updateReserveConfig accounts:
//
//  0. [writable] reserve
//  1. [] lending market
//  2. [] lending market authority
//  3. [signer] lending market owner
//
// The fee receiver chosen at initialization is kept.
func (p *Program) updateReserveConfig(accounts []*runtime.AccountInfo, config state.ReserveConfig) error {
	if err := requireAccounts(accounts, 4); err != nil {
		return err
	}
	reserveInfo, marketInfo, authorityInfo, ownerInfo := accounts[0], accounts[1], accounts[2], accounts[3]
	if err := config.Validate(); err != nil {
		return err
	}
	market, err := p.loadMarket(marketInfo)
	if err != nil {
		return err
	}
	reserve, err := p.loadReserve(reserveInfo, marketInfo.Key)
	if err != nil {
		return err
	}
	if err := requireMarketOwner(market, ownerInfo); err != nil {
		return err
	}
	if _, err := p.marketAuthority(marketInfo.Key, market, authorityInfo); err != nil {
		return err
	}
	if reserve.FlashLoan.Outstanding() {
		return fmt.Errorf("%w: reserve %s has an outstanding flash loan", errs.ErrInvalidAccountInput, reserveInfo.Key)
	}
	config.FeeReceiver = reserve.Config.FeeReceiver
	reserve.Config = config
	reserve.LastUpdate.MarkStale()
	return pack(reserveInfo, reserve)
}

// redeemFees accounts:
//
//  0. [writable] reserve
//  1. [writable] reserve liquidity fee receiver
//  2. [writable] reserve liquidity supply
//  3. [] lending market
//  4. [] lending market authority
//  5. [] token program
func (p *Program) redeemFees(ic *runtime.InvokeContext, accounts []*runtime.AccountInfo) error {
	if err := requireAccounts(accounts, 6); err != nil {
		return err
	}
	reserveInfo, feeReceiver, liquiditySupply := accounts[0], accounts[1], accounts[2]
	marketInfo, authorityInfo, tokenProgram := accounts[3], accounts[4], accounts[5]
	market, err := p.loadMarket(marketInfo)
	if err != nil {
		return err
	}
	reserve, err := p.loadReserve(reserveInfo, marketInfo.Key)
	if err != nil {
		return err
	}
	if err := requireKey(feeReceiver, reserve.Config.FeeReceiver, "reserve liquidity fee receiver"); err != nil {
		return err
	}
	if err := requireKey(liquiditySupply, reserve.Liquidity.SupplyPubkey, "reserve liquidity supply"); err != nil {
		return err
	}
	seeds, err := p.marketAuthority(marketInfo.Key, market, authorityInfo)
	if err != nil {
		return err
	}
	if err := requireTokenProgram(market, tokenProgram); err != nil {
		return err
	}
	if err := requireFreshReserve(reserve, reserveInfo.Key, ic.Slot()); err != nil {
		return err
	}

	amount, err := reserve.CalculateRedeemFees()
	if err != nil {
		return err
	}
	if amount == 0 {
		return errs.ErrInsufficientProtocolFeesToRedeem
	}
	if err := reserve.Liquidity.RedeemFees(amount); err != nil {
		return err
	}
	reserve.LastUpdate.MarkStale()
	if err := pack(reserveInfo, reserve); err != nil {
		return err
	}
	return p.tokens(ic, market.TokenProgramID, seeds).
		transfer(liquiditySupply.Key, feeReceiver.Key, authorityInfo.Key, amount, true)
}
