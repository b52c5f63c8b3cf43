package inmemdb

import (
	"sync"
	"time"
)

type (
	DB struct {
		rates  *rateTable
		tokens *tokenTable
	}

	rateWindow struct {
		start time.Time
		count int
	}

	rateTable struct {
		t     map[string]*rateWindow // by user ID
		mutex sync.RWMutex
	}

	tokenUsage struct {
		day    time.Time
		tokens int
	}

	tokenTable struct {
		t     map[string]*tokenUsage // by user ID
		mutex sync.RWMutex
	}
)

func Open() *DB {
	return &DB{
		rates:  &rateTable{t: make(map[string]*rateWindow)},
		tokens: &tokenTable{t: make(map[string]*tokenUsage)},
	}
}
