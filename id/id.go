package id

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	mu   sync.Mutex
	node *snowflake.Node
)

// Init задаёт номер узла Snowflake. Ошибочный номер отклоняется и узел не меняет;
// после успешного Init или первого New узел уже не переназначается.
func Init(nodeID int64) error {
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	if node == nil {
		node = n
	}
	return nil
}

// New выдаёт упорядоченный по времени уникальный int64.
// Без предварительного Init используется узел 0.
func New() int64 {
	mu.Lock()
	if node == nil {
		node, _ = snowflake.NewNode(0)
	}
	n := node
	mu.Unlock()

	return n.Generate().Int64()
}
