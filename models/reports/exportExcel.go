package reports

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"bitbucket.org/mmdatafocus/billing_backend/models"
)

const activeBillsSheet = "Active Bills"

const ExcelContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var activeBillsHeadings = []string{
	"Bill Number", "Bill Date", "Customer", "Status", "Payment Method",
	"Line", "Product", "HSN Code", "Quantity", "Unit Price", "GST %",
	"CGST", "SGST", "IGST", "Line Total",
	"Bill Subtotal", "Bill GST", "Round Off", "Bill Total",
}

// BuildActiveBillsWorkbook lays out one row per line item. Bill-level columns repeat on
// every row of the bill; a bill without items still gets one row.
func BuildActiveBillsWorkbook(bills []*models.Bill) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", activeBillsSheet); err != nil {
		return nil, err
	}

	for i, h := range activeBillsHeadings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		f.SetCellValue(activeBillsSheet, cell, h)
	}

	row := 2
	for _, b := range bills {
		if b.Status.IsCancelled() {
			continue
		}
		if len(b.Items) == 0 {
			if err := setRow(f, row, billColumns(b, nil)); err != nil {
				return nil, err
			}
			row++
			continue
		}
		for i := range b.Items {
			if err := setRow(f, row, billColumns(b, &b.Items[i])); err != nil {
				return nil, err
			}
			row++
		}
	}
	return f, nil
}

// ActiveBillsXlsx renders the workbook into memory.
func ActiveBillsXlsx(bills []*models.Bill) ([]byte, error) {
	f, err := BuildActiveBillsWorkbook(bills)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func billColumns(b *models.Bill, item *models.BillItem) []interface{} {
	cols := []interface{}{
		b.BillNumber,
		b.BillDate.Format("2006-01-02"),
		b.CustomerName,
		string(b.Status),
		b.PaymentMethod,
	}
	if item != nil {
		cols = append(cols,
			item.LineNo,
			item.ProductName,
			item.HsnCode,
			item.Quantity,
			item.UnitPrice.StringFixed(2),
			item.GstPercentage.String(),
			item.Cgst.StringFixed(2),
			item.Sgst.StringFixed(2),
			item.Igst.StringFixed(2),
			item.Total.StringFixed(2),
		)
	} else {
		cols = append(cols, "", "", "", "", "", "", "", "", "", "")
	}
	return append(cols,
		b.Subtotal.StringFixed(2),
		b.GstAmount.StringFixed(2),
		b.RoundOff.StringFixed(2),
		b.TotalAmount.StringFixed(2),
	)
}

func setRow(f *excelize.File, row int, values []interface{}) error {
	cell := fmt.Sprintf("A%d", row)
	return f.SetSheetRow(activeBillsSheet, cell, &values)
}
