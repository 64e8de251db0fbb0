/*
Package strategies provides the concrete allocation orders for the engine.

PURPOSE:
  A strategy is fixed at loan construction by its code. Each one is a
  triple of component orders (advance, late, on-time), optionally with its
  own rule for what counts as an advance payment.

AVAILABLE CODES:
  mifos-standard                     penalty, fee, interest, principal
                                     in every case
  heavensfamily                      on time / advance: interest, principal,
                                     fee, penalty; late: penalty, fee,
                                     interest, principal
  creocore                           advance only when the payment clears
                                     the installment; advance pays principal
                                     first, otherwise penalty first
  principal-interest-penalties-fees  the name is the order, every case
  interest-principal-penalties-fees  the name is the order, every case

EXAMPLE:
  s, err := strategies.New("mifos-standard",
      strategies.WithOverpaymentHook(func(tx *loan.Transaction, m loan.Money) {
          refunds.Queue(tx, m)
      }))
*/
package strategies

import (
	"fmt"

	"github.com/warp/loan-engine/loan"
)

type Code string

const (
	MifosStandard                  Code = "mifos-standard"
	HeavensFamily                  Code = "heavensfamily"
	CreoCore                       Code = "creocore"
	PrincipalInterestPenaltiesFees Code = "principal-interest-penalties-fees"
	InterestPrincipalPenaltiesFees Code = "interest-principal-penalties-fees"
)

// Default is used when a loan names no strategy.
const Default = MifosStandard

var (
	principal = loan.ComponentPrincipal
	interest  = loan.ComponentInterest
	fee       = loan.ComponentFee
	penalty   = loan.ComponentPenalty
)

type definition struct {
	code        Code
	description string
	advance     []loan.Component
	late        []loan.Component
	onTime      []loan.Component

	// advance requires the payment to clear the installment
	amountAware bool
}

var definitions = []definition{
	{
		code:        MifosStandard,
		description: "Penalties, fees, interest, then principal",
		advance:     []loan.Component{penalty, fee, interest, principal},
		late:        []loan.Component{penalty, fee, interest, principal},
		onTime:      []loan.Component{penalty, fee, interest, principal},
	},
	{
		code:        HeavensFamily,
		description: "Interest and principal first unless late, then charges",
		advance:     []loan.Component{interest, principal, fee, penalty},
		late:        []loan.Component{penalty, fee, interest, principal},
		onTime:      []loan.Component{interest, principal, fee, penalty},
	},
	{
		code:        CreoCore,
		description: "Principal first on payments that clear an installment early",
		advance:     []loan.Component{principal, interest, fee, penalty},
		late:        []loan.Component{penalty, fee, interest, principal},
		onTime:      []loan.Component{penalty, fee, interest, principal},
		amountAware: true,
	},
	{
		code:        PrincipalInterestPenaltiesFees,
		description: "Principal, interest, penalties, then fees",
		advance:     []loan.Component{principal, interest, penalty, fee},
		late:        []loan.Component{principal, interest, penalty, fee},
		onTime:      []loan.Component{principal, interest, penalty, fee},
	},
	{
		code:        InterestPrincipalPenaltiesFees,
		description: "Interest, principal, penalties, then fees",
		advance:     []loan.Component{interest, principal, penalty, fee},
		late:        []loan.Component{interest, principal, penalty, fee},
		onTime:      []loan.Component{interest, principal, penalty, fee},
	},
}

func lookup(code Code) (definition, bool) {
	for _, d := range definitions {
		if d.code == code {
			return d, true
		}
	}
	return definition{}, false
}

// =============================================================================
// CONSTRUCTION
// =============================================================================

type Option func(*Ordered)

// WithOverpaymentHook is called with the transaction and the amount left
// once every installment has been visited.
func WithOverpaymentHook(fn func(tx *loan.Transaction, amount loan.Money)) Option {
	return func(s *Ordered) { s.hook = fn }
}

// New returns the strategy for code. An empty code selects Default.
func New(code string, opts ...Option) (loan.Strategy, error) {
	if code == "" {
		code = string(Default)
	}
	def, ok := lookup(Code(code))
	if !ok {
		return nil, fmt.Errorf("%q: %w", code, loan.ErrUnknownStrategy)
	}

	s := &Ordered{def: def}
	for _, opt := range opts {
		opt(s)
	}
	if def.amountAware {
		return &amountAware{Ordered: s}, nil
	}
	return s, nil
}

// Resolver returns a loan.StrategyResolver that builds strategies with opts.
func Resolver(opts ...Option) loan.StrategyResolver {
	return loan.StrategyResolverFunc(func(code string) (loan.Strategy, error) {
		return New(code, opts...)
	})
}

// Codes lists every known code in a stable order.
func Codes() []string {
	out := make([]string, len(definitions))
	for i, d := range definitions {
		out[i] = string(d.code)
	}
	return out
}

// Describe returns a one-line description of code.
func Describe(code string) (string, bool) {
	def, ok := lookup(Code(code))
	return def.description, ok
}

// =============================================================================
// ORDERED - Fixed component order per classification
// =============================================================================

type Ordered struct {
	def  definition
	hook func(*loan.Transaction, loan.Money)
}

func (s *Ordered) Code() string { return string(s.def.code) }

func (s *Ordered) HandleAdvancePayment(p loan.Payment) loan.Money {
	return loan.PayComponents(p, s.def.advance...)
}

func (s *Ordered) HandleLateRepayment(p loan.Payment) loan.Money {
	return loan.PayComponents(p, s.def.late...)
}

func (s *Ordered) HandleOnTimePayment(p loan.Payment) loan.Money {
	return loan.PayComponents(p, s.def.onTime...)
}

func (s *Ordered) OnOverpayment(tx *loan.Transaction, amount loan.Money) {
	if s.hook != nil {
		s.hook(tx, amount)
	}
}

// amountAware treats a payment as advance only if it is dated before the
// due date and covers everything the installment still owes.
type amountAware struct {
	*Ordered
}

func (s *amountAware) IsTransactionInAdvanceOfInstallment(p loan.Payment) bool {
	current := p.Current()
	return p.Date.Before(current.DueDate) &&
		p.Unprocessed.IsGreaterThanOrEqualTo(current.TotalOutstanding(p.Currency))
}
