// Package models defines the data shapes exchanged with the grocery
// manager REST API.
//
// The API owns all of these shapes; this package only mirrors them.
// JSON tags match the wire names exactly (snake_case), and ids are
// numeric because the backend hands out integer primary keys.
//
// Design notes:
//
//  1. Item keeps Quantity and Weight as *float64. The backend sends
//     null for whichever measure does not apply, and the cost
//     calculator needs "absent" to be distinguishable from zero.
//  2. UserCost doubles as both the spending-history row returned by
//     GET /users/costs (receipt_id, slot_time, cost) and the upload
//     row for PUT /users/costs (user_id, receipt_id, cost); unused
//     fields are omitted when marshalling.
package models
