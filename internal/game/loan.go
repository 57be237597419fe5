package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dailytrade/internal/command"
	"dailytrade/internal/metrics"
	"dailytrade/internal/model"
	"dailytrade/internal/store"
)

// Loan credits amount gems and adds it to the principal. Loan and Pay share one action per
// player per day.
func (s *Service) Loan(ctx context.Context, tx store.Tx, username, amount string, today time.Time) (string, error) {
	n, err := parseAmount(amount)
	if errors.Is(err, errTooLarge) {
		return reject(command.Loan, "%s tried to take a loan of %s gems, but this number is too large. The loan has not been granted.", username, amount)
	}
	if err != nil {
		return reject(command.Loan, "%s tried to take a loan of %s gems, but this is not a whole number. The loan has not been granted.", username, amount)
	}

	locked, err := tx.HasLoanActivity(ctx, username, today)
	if err != nil {
		return "", err
	}
	if locked {
		return reject(command.Loan, "%s tried to get a loan, but they already got a loan/bought off a loan today. This is not possible on the same day, so no loan has been granted.", username)
	}
	if n == 0 {
		return reject(command.Loan, "%s tried to take a loan of 0 gems. This is not possible, so no loan has been granted.", username)
	}

	principal, err := s.principal(ctx, tx, username)
	if err != nil {
		return "", err
	}
	gems, err := tx.Balance(ctx, username)
	if err != nil {
		return "", err
	}
	if !fits(gems, n) || !fits(principal, n) {
		return reject(command.Loan, "%s tried to take a loan of %d gems, but this would be more gems than the game can hold. The loan has not been granted.", username, n)
	}
	if _, err := s.addGems(ctx, tx, username, n, today); err != nil {
		return "", err
	}
	if err := tx.InsertLoanEvent(ctx, model.LoanEvent{Username: username, Date: today, Type: model.LoanTaken, Amount: n}); err != nil {
		return "", err
	}
	if err := tx.PutLoan(ctx, model.Loan{Username: username, Amount: principal + n}); err != nil {
		return "", err
	}
	metrics.GemsMoved.WithLabelValues("loan").Add(float64(n))

	total := ""
	if principal > 0 {
		total = fmt.Sprintf(" Their loan is now %d gems.", principal+n)
	}
	return done(command.Loan, "%s took a loan of %d gems.%s They will have to pay an interest of %d gems each day.",
		username, n, total, Interest(principal+n))
}

// Pay repays part of the principal. Over-principal is checked before over-balance.
func (s *Service) Pay(ctx context.Context, tx store.Tx, username, amount string, today time.Time) (string, error) {
	locked, err := tx.HasLoanActivity(ctx, username, today)
	if err != nil {
		return "", err
	}
	if locked {
		return reject(command.Pay, "%s tried to pay off a loan, but they already got a loan/bought off a loan today. This is not possible on the same day, so the payment has not been granted.", username)
	}

	principal, err := s.principal(ctx, tx, username)
	if err != nil {
		return "", err
	}
	if principal == 0 {
		return reject(command.Pay, "%s tried to pay back part of their loan, but they don't have a loan. The payback has been cancelled.", username)
	}

	n := principal
	if amount != command.AmountAll {
		n, err = parseAmount(amount)
		if errors.Is(err, errTooLarge) {
			return reject(command.Pay, "%s tried to pay off %s gems from their loan, but this number is too large. This payment has not been granted.", username, amount)
		}
		if err != nil {
			return reject(command.Pay, "%s tried to pay off %s gems from their loan, but this is not a whole number. This payment has not been granted.", username, amount)
		}
	}
	if n == 0 {
		return reject(command.Pay, "%s tried to pay back 0 gems of their loan. This is not possible, so the payment has not been granted.", username)
	}
	if n > principal {
		return reject(command.Pay, "%s tried to pay back %d gems of their loan, but only %d gems of the loan were left. The payback has been cancelled.", username, n, principal)
	}
	gems, err := tx.Balance(ctx, username)
	if err != nil {
		return "", err
	}
	if n > gems {
		return reject(command.Pay, "%s tried to pay back %d gems of their loan, but only had %d gems. The payback has been cancelled.", username, n, gems)
	}

	if _, err := s.addGems(ctx, tx, username, -n, today); err != nil {
		return "", err
	}
	if err := tx.InsertLoanEvent(ctx, model.LoanEvent{Username: username, Date: today, Type: model.LoanPayment, Amount: n}); err != nil {
		return "", err
	}
	left := principal - n
	if left == 0 {
		err = tx.DeleteLoan(ctx, username)
	} else {
		err = tx.PutLoan(ctx, model.Loan{Username: username, Amount: left})
	}
	if err != nil {
		return "", err
	}
	metrics.GemsMoved.WithLabelValues("pay").Add(float64(n))

	return done(command.Pay, "%s paid off %d gems of their loan. Now %d gems are left in their loan. They will have to pay an interest of %d gems each day.",
		username, n, left, Interest(left))
}

// AccrueInterest charges the daily interest on every loan. Interest a player cannot pay is
// added to the principal. A second pass on the same date does nothing.
func (s *Service) AccrueInterest(ctx context.Context, tx store.Tx, today time.Time) ([]Message, error) {
	first, err := tx.MarkAccrual(ctx, today)
	if err != nil {
		return nil, err
	}
	if !first {
		s.log.Info("interest already accrued", "date", model.DayKey(today))
		return nil, nil
	}

	loans, err := tx.Loans(ctx)
	if err != nil {
		return nil, err
	}
	var out []Message
	for _, l := range loans {
		interest := Interest(l.Amount)
		gems, err := tx.Balance(ctx, l.Username)
		if errors.Is(err, store.ErrNotFound) {
			s.log.Warn("loan without balance, skipping interest", "username", l.Username)
			continue
		}
		if err != nil {
			return nil, err
		}

		if gems >= interest {
			if err := tx.SetBalance(ctx, l.Username, today, gems-interest); err != nil {
				return nil, err
			}
			metrics.GemsMoved.WithLabelValues("interest").Add(float64(interest))
			out = append(out, Message{
				Username: l.Username,
				Text:     fmt.Sprintf("%s has paid %d gems as interest on their loan.", l.Username, interest),
			})
			continue
		}

		shortfall := interest - gems
		principal := saturatingAdd(l.Amount, shortfall)
		if err := tx.SetBalance(ctx, l.Username, today, 0); err != nil {
			return nil, err
		}
		if err := tx.InsertLoanEvent(ctx, model.LoanEvent{Username: l.Username, Date: today, Type: model.LoanInterest, Amount: shortfall}); err != nil {
			return nil, err
		}
		if err := tx.PutLoan(ctx, model.Loan{Username: l.Username, Amount: principal}); err != nil {
			return nil, err
		}
		metrics.GemsMoved.WithLabelValues("interest").Add(float64(gems))
		out = append(out, Message{
			Username: l.Username,
			Text: fmt.Sprintf("%s had to pay %d gems as interest on their loan. They only had %d gems. The rest has been added to their loan. Their loan is now %d gems, so they have to pay %d gems interest per day.",
				l.Username, interest, gems, principal, Interest(principal)),
		})
	}
	s.log.Info("interest accrued", "date", model.DayKey(today), "loans", len(loans))
	return out, nil
}

func (s *Service) principal(ctx context.Context, tx store.Tx, username string) (int64, error) {
	amount, err := tx.Loan(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	return amount, err
}
