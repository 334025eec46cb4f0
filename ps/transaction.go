package ps

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing/object"
)

// Transaction is one journal commit
type Transaction struct {
	Id      string
	When    time.Time
	Author  string // "Name <email>" format
	Message string
}

func (transaction Transaction) String() string {
	return fmt.Sprintf("Transaction{Id: %s, When: %s, Author: %s}", transaction.Id, transaction.When, transaction.Author)
}

func transactionOf(c *object.Commit) Transaction {
	author := ""
	if c.Author.Name != "" || c.Author.Email != "" {
		author = fmt.Sprintf("%s <%s>", c.Author.Name, c.Author.Email)
	}
	return Transaction{
		Id:      c.Hash.String(),
		When:    c.Committer.When,
		Author:  author,
		Message: strings.TrimSpace(c.Message),
	}
}

func (j *Journal) LatestTransaction() Transaction {
	j.mu.RLock()
	defer j.mu.RUnlock()

	headRef, err := j.repo.Head()
	if err != nil || headRef == nil {
		// No commits yet
		return Transaction{}
	}

	commit, err := j.repo.CommitObject(headRef.Hash())
	if err != nil {
		return Transaction{}
	}

	return transactionOf(commit)
}

// TransactionsSince returns the commits made at or after asof, newest first.
func (j *Journal) TransactionsSince(asof time.Time) ([]Transaction, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if _, err := j.repo.Head(); err != nil {
		return nil, nil
	}

	cIter, err := j.repo.Log(&git.LogOptions{
		Since: &asof,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}

	var transactions []Transaction
	err = cIter.ForEach(func(c *object.Commit) error {
		transactions = append(transactions, transactionOf(c))
		return nil
	})
	return transactions, err
}
