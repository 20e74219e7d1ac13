package notification

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bayarinter/billing/pkg/dates"
)

const (
	KindInvoiceIssued       = "invoice_issued"
	KindInvoiceReminder     = "invoice_reminder"
	KindSuspended           = "subscriber_suspended"
	KindInvoicePaid         = "invoice_paid"
	KindResellerInvoice     = "reseller_invoice_issued"
	KindResellerInvoicePaid = "reseller_invoice_paid"
)

// FormatRupiah renders an IDR amount with dot thousands separators, e.g. Rp150.000.
func FormatRupiah(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	s := strconv.FormatInt(amount, 10)
	out := make([]byte, 0, len(s)+len(s)/3)
	for i := range len(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, '.')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-Rp" + string(out)
	}
	return "Rp" + string(out)
}

func InvoiceIssued(phone, username, profile string, amount int64, due time.Time) Message {
	return Message{Kind: KindInvoiceIssued, Phone: phone, Text: fmt.Sprintf(
		"Halo %s, tagihan baru untuk paket %s senilai %s jatuh tempo %s. Harap segera dibayar.",
		username, profile, FormatRupiah(amount), dates.Format(due))}
}

func InvoiceCreated(phone string, months int, profile string, amount int64, periodEnd time.Time) Message {
	return Message{Kind: KindInvoiceIssued, Phone: phone, Text: fmt.Sprintf(
		"Tagihan baru %d bulan paket %s total %s jatuh tempo %s.",
		months, profile, FormatRupiah(amount), dates.Format(periodEnd))}
}

func InvoiceReminder(phone, username string, periodStart, periodEnd, monthEnd time.Time) Message {
	return Message{Kind: KindInvoiceReminder, Phone: phone, Text: fmt.Sprintf(
		"Halo %s, tagihan Anda untuk periode %s - %s masih belum dibayar. Mohon segera lunasi sebelum %s.",
		username, dates.Format(periodStart), dates.Format(periodEnd), dates.Format(monthEnd))}
}

func Suspended(phone, username string, today time.Time) Message {
	return Message{Kind: KindSuspended, Phone: phone, Text: fmt.Sprintf(
		"Halo %s, layanan Anda disuspend per 1 %s karena tagihan belum dibayar.",
		username, today.Format("January 2006"))}
}

func InvoicePaid(phone, username, invoiceID string, activeUntil time.Time) Message {
	return Message{Kind: KindInvoicePaid, Phone: phone, Text: fmt.Sprintf(
		"Pembayaran invoice %s berhasil. Layanan aktif sampai %s. Terima kasih %s!",
		invoiceID, dates.Format(activeUntil), username)}
}

func ResellerInvoiceIssued(phone, name string, periodStart time.Time, total int64, dueDay int) Message {
	return Message{Kind: KindResellerInvoice, Phone: phone, Text: fmt.Sprintf(
		"Halo %s, invoice bulan %s dengan total %s sudah dibuat. Mohon dibayar sebelum tanggal %d.",
		name, periodStart.Format("January 2006"), FormatRupiah(total), dueDay)}
}

func ResellerInvoicePaid(phone, name, invoiceID string) Message {
	return Message{Kind: KindResellerInvoicePaid, Phone: phone, Text: fmt.Sprintf(
		"Halo %s, pembayaran invoice %s sudah kami terima. Terima kasih!", name, invoiceID)}
}
