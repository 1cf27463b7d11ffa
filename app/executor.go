package app

import (
	"context"

	"github.com/moontrade/backbone/logger"
	"github.com/moontrade/backbone/message"
)

// logExecutor stands in for the execution service.
type logExecutor struct {
	log *logger.Logger
}

func (e logExecutor) Execute(_ context.Context, opp *message.Opportunity) error {
	e.log.Info("opportunity %s %s buy %s@%s sell %s@%s profit %s%%",
		opp.ID, opp.Pair, opp.BuyDex, opp.BuyPrice, opp.SellDex, opp.SellPrice, opp.ProfitPct)
	return nil
}
