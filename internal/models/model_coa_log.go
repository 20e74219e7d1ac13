package models

import "time"

// CoaLog records one RADIUS Disconnect-Request attempt.
type CoaLog struct {
	ID        uint64    `gorm:"column:id;primary_key;autoIncrement" json:"id"`
	Username  string    `gorm:"column:username;type:varchar(64);not null;index" json:"username"`
	NasIP     string    `gorm:"column:nas_ip;type:varchar(64);not null" json:"nas_ip"`
	Result    string    `gorm:"column:result;type:varchar(16);not null" json:"result"`
	Response  string    `gorm:"column:response;type:text" json:"response"`
	CreatedAt time.Time `json:"created_at"`
}

func (CoaLog) TableName() string { return "coa_log" }

// RadAcct is the FreeRADIUS accounting table. It is owned by FreeRADIUS and only read here.
type RadAcct struct {
	RadAcctID        int64      `gorm:"column:radacctid;primary_key"`
	AcctSessionID    string     `gorm:"column:acctsessionid"`
	Username         string     `gorm:"column:username"`
	NasIPAddress     string     `gorm:"column:nasipaddress"`
	FramedIPAddress  *string    `gorm:"column:framedipaddress"`
	CallingStationID *string    `gorm:"column:callingstationid"`
	AcctStartTime    *time.Time `gorm:"column:acctstarttime"`
	AcctStopTime     *time.Time `gorm:"column:acctstoptime"`
}

func (RadAcct) TableName() string { return "radacct" }
