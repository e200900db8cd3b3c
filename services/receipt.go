package services

import (
	"fmt"
	"strings"

	"github.com/storesphere/checkout-service/models"
)

const receiptSubject = "StoreSphere - Order Confirmation & Receipt"

// buildReceiptHTML renders the customer receipt body, one list entry per
// cart line regardless of the line's fulfillment outcome.
func buildReceiptHTML(userName string, totalAmount float64, lines []models.CartLine) string {
	var items strings.Builder
	for _, line := range lines {
		lineTotal := line.UnitPrice * float64(line.Quantity)
		items.WriteString(fmt.Sprintf("<li>%s (x%d): Rs. %.2f</li>", line.Name, line.Quantity, lineTotal))
	}

	return fmt.Sprintf(`<html>
<body>
    <h2>Thank you for your purchase, %s!</h2>
    <p>We have received your payment of <b>Rs. %.2f</b>.</p>
    <h3>Order Summary:</h3>
    <ul>%s</ul>
    <p>Your order is being processed and will be shipped soon.</p>
    <p>- The StoreSphere Team</p>
</body>
</html>`, userName, totalAmount, items.String())
}
