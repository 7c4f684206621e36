package main

import (
	"fmt"
	"log"
	"os"

	"github.com/glebarez/sqlite"
	"github.com/wwwzy/PumpCPQ/internal/storage"
	"gorm.io/gorm"
)

func main() {
	path := "pumpcpq.db"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	fmt.Printf("--- Verifying PumpCPQ Database (%s) ---\n", path)

	// 表可能还没有迁移，先检查再查询
	var quoteCount int64
	if !db.Migrator().HasTable(&storage.Quote{}) {
		fmt.Println("Table 'quotes' does not exist yet.")
	} else {
		db.Model(&storage.Quote{}).Count(&quoteCount)
		fmt.Printf("Total Quotes: %d\n", quoteCount)

		if quoteCount > 0 {
			var quotes []storage.Quote
			db.Order("quoted_at desc").Limit(5).Find(&quotes)
			fmt.Println("Latest 5 Quotes (Local Time):")
			for _, q := range quotes {
				fmt.Printf("  [%s] %s %s %s %gHP valid=%v approval=%s net=%.2f\n",
					q.QuotedAt.Local().Format("2006-01-02 15:04:05"), q.SessionID, q.CustomerName,
					q.Family, q.MotorHP, q.Valid, q.Approval, q.NetTotal)
			}
		}
	}

	fmt.Println("\n------------------------------------")

	var auditCount int64
	if !db.Migrator().HasTable(&storage.AuditRecord{}) {
		fmt.Println("Table 'audit_records' does not exist yet.")
	} else {
		db.Model(&storage.AuditRecord{}).Count(&auditCount)
		fmt.Printf("Total Audit Records: %d\n", auditCount)

		if auditCount > 0 {
			var recs []storage.AuditRecord
			db.Order("started_at desc").Limit(5).Find(&recs)
			fmt.Println("Latest 5 Audit Records (Local Time):")
			for _, r := range recs {
				msg := r.ErrorMessage
				if len(msg) > 50 {
					msg = msg[:47] + "..."
				}
				fmt.Printf("  [%s] %s %s [%s] %s\n",
					r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.SessionID, r.Action, r.Status, msg)
			}
		}
	}
}
