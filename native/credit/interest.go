package credit

import "math/big"

var (
	basisPoints    = big.NewInt(10_000)
	secondsPerYear = big.NewInt(31_536_000)
	// interestDivisor = secondsPerYear * basisPoints, precomputed.
	interestDivisor = new(big.Int).Mul(secondsPerYear, basisPoints)
)

// Interest computes simple interest accrued over elapsed seconds:
//
//	principal * rateBps * elapsed / (31_536_000 * 10_000)
//
// Floor division, so short cheap loans can accrue zero. Negative elapsed is
// rejected rather than clamped so callers surface clock anomalies.
func Interest(principal *big.Int, rateBps uint64, elapsedSecs int64) (*big.Int, error) {
	if elapsedSecs < 0 {
		return nil, ErrMathOverflow
	}
	if principal == nil || principal.Sign() <= 0 || rateBps == 0 || elapsedSecs == 0 {
		return big.NewInt(0), nil
	}
	interest := new(big.Int).Mul(principal, new(big.Int).SetUint64(rateBps))
	interest.Mul(interest, big.NewInt(elapsedSecs))
	interest.Quo(interest, interestDivisor)
	return interest, nil
}

// SplitInterest divides accrued interest into the insurance fee, protocol fee
// and lender share. Fees are floored; the remainder always goes to the lender
// so the three parts sum exactly to the input.
func SplitInterest(interest *big.Int, insuranceFeeBps, protocolFeeBps uint64) (lender, insurance, protocol *big.Int) {
	if interest == nil || interest.Sign() <= 0 {
		return big.NewInt(0), big.NewInt(0), big.NewInt(0)
	}
	insurance = new(big.Int).Mul(interest, new(big.Int).SetUint64(insuranceFeeBps))
	insurance.Quo(insurance, basisPoints)
	protocol = new(big.Int).Mul(interest, new(big.Int).SetUint64(protocolFeeBps))
	protocol.Quo(protocol, basisPoints)
	lender = new(big.Int).Sub(interest, insurance)
	lender.Sub(lender, protocol)
	return lender, insurance, protocol
}
