package migrations

import (
	"fmt"
	"log"

	"chainvote-backend/models"

	"gorm.io/gorm"
)

// EnsureVoteUniqueness 确保 votes 表上存在 (voter_id, election_id) 唯一索引
// 早期建出的库可能缺少该索引，一人一票完全依赖它
func EnsureVoteUniqueness(db *gorm.DB) error {
	m := db.Migrator()
	if !m.HasTable(&models.Vote{}) {
		return fmt.Errorf("votes 表不存在")
	}
	if m.HasIndex(&models.Vote{}, models.VoteUniqueIndex) {
		return nil
	}

	log.Printf("创建唯一索引 %s", models.VoteUniqueIndex)
	if err := m.CreateIndex(&models.Vote{}, models.VoteUniqueIndex); err != nil {
		return fmt.Errorf("创建唯一索引失败: %w", err)
	}
	return nil
}
