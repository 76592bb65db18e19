package main

import (
	"context"
	"errors"
	"log"
	"time"

	"chainvote-backend/models"
	"chainvote-backend/service"
)

const demoPassword = "password123"

type demoAccount struct {
	role  models.Role
	email string
	name  string
}

var demoAccounts = []demoAccount{
	{models.RoleCompany, "board@acme.example", "Acme Corp"},
	{models.RoleVoter, "alice@acme.example", "Alice"},
	{models.RoleVoter, "bob@acme.example", "Bob"},
}

// ensureAccount 账户已存在时直接登录，可重复执行
func ensureAccount(ctx context.Context, auth *service.AuthService, acc demoAccount) (*service.Session, error) {
	session, err := auth.SignUp(ctx, acc.role, acc.email, demoPassword, acc.name)
	if errors.Is(err, service.ErrAuthFailed) {
		return auth.SignIn(ctx, acc.email, demoPassword)
	}
	return session, err
}

// seed 写入演示公司、两名选民以及一场进行中的 Board Election
func seed(ctx context.Context, a *app) error {
	sessions := make([]*service.Session, 0, len(demoAccounts))
	for _, acc := range demoAccounts {
		session, err := ensureAccount(ctx, a.auth, acc)
		if err != nil {
			return err
		}
		sessions = append(sessions, session)
	}
	company := sessions[0]

	existing, err := a.elections.ListCompanyElections(ctx, company.User.ID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		log.Println("演示数据已存在，跳过")
		return nil
	}

	today := time.Now().In(a.cfg.Tally.Location()).Format("2006-01-02")
	election, err := a.elections.CreateElection(ctx, company.User.ID, models.CreateElectionRequest{
		Title:      "Board Election",
		StartDate:  today,
		StartTime:  "00:00",
		EndDate:    today,
		EndTime:    "23:59",
		Candidates: []string{"Alice", "Bob", "Carol"},
	})
	if err != nil {
		return err
	}

	log.Printf("演示数据已写入: 选举 %s，账户密码均为 %s", election.ID, demoPassword)
	for _, acc := range demoAccounts {
		log.Printf("  %s (%s)", acc.email, acc.role)
	}
	return nil
}
